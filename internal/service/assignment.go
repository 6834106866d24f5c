package service

import (
	"sort"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

// OrderTechnicians sorts candidates into the fixed assignment priority:
// lower Priority first, ties broken by ID. The input is not modified.
func OrderTechnicians(techs []models.Technician) []models.Technician {
	out := make([]models.Technician, len(techs))
	copy(out, techs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority == out[j].Priority {
			return out[i].ID < out[j].ID
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}

// PickTechnician binds the first technician with capacity for the slot. When
// requested is set only that technician is considered, and only if it is one
// of techs.
func PickTechnician(policy models.SectorCapacityPolicy, techs []models.Technician, requested string, date time.Time, period models.Period, occ Occupancy) (string, bool) {
	if requested != "" {
		for _, t := range techs {
			if t.ID == requested {
				return requested, HasCapacity(policy, requested, date, period, occ)
			}
		}
		return "", false
	}
	for _, t := range OrderTechnicians(techs) {
		if HasCapacity(policy, t.ID, date, period, occ) {
			return t.ID, true
		}
	}
	return "", false
}
