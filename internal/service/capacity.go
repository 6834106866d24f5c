package service

import (
	"strings"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

type PeriodCounts struct {
	M int `json:"M"`
	T int `json:"T"`
}

func (c PeriodCounts) For(p models.Period) int {
	if p == models.PeriodAfternoon {
		return c.T
	}
	return c.M
}

func (c PeriodCounts) Total() int {
	return c.M + c.T
}

// Occupancy maps technician -> local date (YYYY-MM-DD) -> bookings per period.
// It is derived from scheduled orders and rebuilt on every request.
type Occupancy map[string]map[string]PeriodCounts

func (o Occupancy) Counts(technicianID string, date time.Time) PeriodCounts {
	return o[technicianID][FormatDate(date)]
}

// BuildOccupancy counts scheduled orders per technician, day and period.
// Orders without technician or start are ignored; exclude skips the order
// being scheduled so a reschedule never counts against itself.
func BuildOccupancy(orders []models.ServiceOrder, exclude string, loc *time.Location) Occupancy {
	occ := Occupancy{}
	for _, o := range orders {
		if o.ID == exclude || o.TechnicianID == "" || o.ScheduledStart == nil {
			continue
		}
		day := FormatDate(DateOf(*o.ScheduledStart, loc))
		byDate, ok := occ[o.TechnicianID]
		if !ok {
			byDate = map[string]PeriodCounts{}
			occ[o.TechnicianID] = byDate
		}
		counts := byDate[day]
		if o.Period == models.PeriodAfternoon {
			counts.T++
		} else {
			counts.M++
		}
		byDate[day] = counts
	}
	return occ
}

// SectorPolicy falls back to maintenance mode with the subject's default
// per-period capacity when the sector is not configured.
func SectorPolicy(policies models.Policies, sectorID string, subject models.SchedulingPolicy) models.SectorCapacityPolicy {
	if p, ok := policies.Sectors[strings.TrimSpace(sectorID)]; ok {
		return p
	}
	limits := subject.DefaultCapacity
	if limits.M == 0 && limits.T == 0 {
		limits = DefaultSchedulingPolicy.DefaultCapacity
	}
	return models.SectorCapacityPolicy{Mode: models.ModeMaintenance, PeriodLimit: limits}
}

func HasCapacity(policy models.SectorCapacityPolicy, technicianID string, date time.Time, period models.Period, occ Occupancy) bool {
	counts := occ.Counts(technicianID, date)
	if policy.Mode == models.ModeInstallation {
		return counts.Total() < policy.DailyLimit
	}
	return counts.For(period) < policy.PeriodLimit.For(period)
}
