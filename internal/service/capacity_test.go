package service

import (
	"testing"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

func booked(id, tech string, d time.Time, period models.Period) models.ServiceOrder {
	start := d.Add(9 * time.Hour)
	return models.ServiceOrder{ID: id, TechnicianID: tech, ScheduledStart: &start, Period: period}
}

func TestBuildOccupancy(t *testing.T) {
	d := day(2025, 9, 19)
	orders := []models.ServiceOrder{
		booked("a", "t1", d, models.PeriodMorning),
		booked("b", "t1", d, ""),
		booked("c", "t1", d, models.PeriodAfternoon),
		booked("self", "t1", d, models.PeriodAfternoon),
		booked("d", "t2", d.AddDate(0, 0, 1), models.PeriodAfternoon),
		{ID: "unscheduled", TechnicianID: "t1"},
	}
	occ := BuildOccupancy(orders, "self", time.UTC)

	got := occ.Counts("t1", d)
	if got.M != 2 || got.T != 1 {
		t.Fatalf("expected t1 M=2 T=1 (missing period counts as M), got %+v", got)
	}
	if occ.Counts("t2", d).Total() != 0 {
		t.Fatalf("t2 has nothing on %s", FormatDate(d))
	}
}

func TestHasCapacityMaintenanceScenario(t *testing.T) {
	d := day(2025, 9, 19)
	policy := models.SectorCapacityPolicy{Mode: models.ModeMaintenance, PeriodLimit: models.PeriodCapacity{M: 2, T: 3}}
	occ := BuildOccupancy([]models.ServiceOrder{
		booked("a", "t1", d, models.PeriodMorning),
		booked("b", "t1", d, models.PeriodMorning),
	}, "", time.UTC)

	if HasCapacity(policy, "t1", d, models.PeriodMorning, occ) {
		t.Fatalf("two morning bookings must fill a limit of 2")
	}
	if !HasCapacity(policy, "t1", d, models.PeriodAfternoon, occ) {
		t.Fatalf("afternoon is counted independently")
	}
}

func TestHasCapacityInstallationCountsWholeDay(t *testing.T) {
	d := day(2025, 9, 19)
	policy := models.SectorCapacityPolicy{Mode: models.ModeInstallation, DailyLimit: 2}
	occ := BuildOccupancy([]models.ServiceOrder{
		booked("a", "t1", d, models.PeriodMorning),
		booked("b", "t1", d, models.PeriodAfternoon),
	}, "", time.UTC)

	for _, p := range models.Periods {
		if HasCapacity(policy, "t1", d, p, occ) {
			t.Fatalf("daily limit reached, period %s must be full", p)
		}
	}
	if !HasCapacity(policy, "t1", d.AddDate(0, 0, 1), models.PeriodMorning, occ) {
		t.Fatalf("next day is free")
	}
}

func TestSectorPolicyFallback(t *testing.T) {
	subject := models.SchedulingPolicy{}
	p := SectorPolicy(models.Policies{}, "unknown", subject)
	if p.Mode != models.ModeMaintenance || p.PeriodLimit.M != 2 || p.PeriodLimit.T != 3 {
		t.Fatalf("expected maintenance M:2 T:3 fallback, got %+v", p)
	}
	configured := models.Policies{Sectors: map[string]models.SectorCapacityPolicy{
		"5": {Mode: models.ModeInstallation, DailyLimit: 4},
	}}
	if p := SectorPolicy(configured, "5", subject); p.Mode != models.ModeInstallation {
		t.Fatalf("expected configured sector policy, got %+v", p)
	}
}

func TestOrderTechniciansIsStable(t *testing.T) {
	techs := []models.Technician{
		{ID: "t3", Priority: 1},
		{ID: "t1", Priority: 2},
		{ID: "t2", Priority: 1},
	}
	got := OrderTechnicians(techs)
	if got[0].ID != "t2" || got[1].ID != "t3" || got[2].ID != "t1" {
		t.Fatalf("unexpected order %+v", got)
	}
	if techs[0].ID != "t3" {
		t.Fatalf("input must not be reordered")
	}
}
