package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/ticketing"
)

// countingTicketing records every backend call and fails them all.
type countingTicketing struct {
	calls int
	block bool
}

func (c *countingTicketing) fail(ctx context.Context) error {
	c.calls++
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return errors.New("backend down")
}

func (c *countingTicketing) FindClientByCPF(ctx context.Context, cpf string) (models.Client, error) {
	return models.Client{}, c.fail(ctx)
}

func (c *countingTicketing) ListOpenOrders(ctx context.Context, clientID string) ([]models.ServiceOrder, error) {
	return nil, c.fail(ctx)
}

func (c *countingTicketing) GetOrder(ctx context.Context, orderID string) (models.ServiceOrder, error) {
	return models.ServiceOrder{}, c.fail(ctx)
}

func (c *countingTicketing) ListTechnicians(ctx context.Context, sectorID string) ([]models.Technician, error) {
	return nil, c.fail(ctx)
}

func (c *countingTicketing) ListScheduledOrders(ctx context.Context, sectorID string, from, to time.Time) ([]models.ServiceOrder, error) {
	return nil, c.fail(ctx)
}

func (c *countingTicketing) AssignSchedule(ctx context.Context, orderID string, date time.Time, period models.Period, technicianID string) error {
	return c.fail(ctx)
}

func newEngine(tk ticketing.Client, now time.Time) *AvailabilityEngine {
	return &AvailabilityEngine{
		Ticketing: tk,
		Policies: models.Policies{
			Subjects: map[string]models.SchedulingPolicy{
				"*": {MinLeadDays: 1, MaxLeadDays: 15, DefaultCapacity: models.PeriodCapacity{M: 2, T: 3}},
			},
			Sectors: map[string]models.SectorCapacityPolicy{
				"s1": {Mode: models.ModeMaintenance, PeriodLimit: models.PeriodCapacity{M: 2, T: 3}},
			},
		},
		Location: time.UTC,
		Timeout:  50 * time.Millisecond,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return now },
	}
}

// seedSector stores two technicians in sector s1 and the order to schedule.
func seedSector(created time.Time) (*ticketing.Memory, models.ServiceOrder) {
	mem := ticketing.NewMemory()
	mem.AddTechnician(models.Technician{ID: "t1", SectorID: "s1", Priority: 1})
	mem.AddTechnician(models.Technician{ID: "t2", SectorID: "s1", Priority: 2})
	order := models.ServiceOrder{ID: "os-1", ClientID: "c1", SubjectCode: "17", SectorID: "s1", CreatedAt: created}
	mem.AddOrder(order)
	return mem, order
}

func addBooking(mem *ticketing.Memory, id, tech string, d time.Time, period models.Period) {
	start, end := ticketing.PeriodWindow(d, period)
	mem.AddOrder(models.ServiceOrder{
		ID: id, SectorID: "s1", TechnicianID: tech, Period: period,
		ScheduledStart: &start, ScheduledEnd: &end, Status: ticketing.StatusScheduled,
	})
}

func sameSlot(a, b models.Slot) bool {
	return a.Date.Equal(b.Date) && a.Period == b.Period && a.TechnicianID == b.TechnicianID
}

func TestCheckSlotSlaExceededCarriesDeadline(t *testing.T) {
	mem, order := seedSector(day(2025, 1, 1))
	e := newEngine(mem, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))

	_, err := e.CheckSlot(context.Background(), order, day(2025, 1, 20), models.PeriodMorning, "")
	if KindOf(err) != KindSlaExceeded {
		t.Fatalf("expected SLA_EXCEEDED, got %v", err)
	}
	if d, ok := DeadlineOf(err); !ok || !d.Equal(day(2025, 1, 16)) {
		t.Fatalf("expected deadline 2025-01-16, got %v", d)
	}
}

func TestCheckSlotSlaExceededForEveryLaterBusinessDay(t *testing.T) {
	mem, order := seedSector(day(2025, 1, 1))
	e := newEngine(mem, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))

	for d := day(2025, 1, 17); d.Before(day(2025, 2, 28)); d = d.AddDate(0, 0, 1) {
		if !IsBusinessDay(d) {
			continue
		}
		err := e.CheckDate(order, d)
		if KindOf(err) != KindSlaExceeded {
			t.Fatalf("%s: expected SLA_EXCEEDED, got %v", FormatDate(d), err)
		}
	}
}

func TestCheckSlotWeekendNeverReadsCapacity(t *testing.T) {
	tk := &countingTicketing{}
	e := newEngine(tk, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))
	order := models.ServiceOrder{ID: "os-1", SectorID: "s1", CreatedAt: day(2025, 9, 20)}

	_, err := e.CheckSlot(context.Background(), order, day(2025, 9, 28), models.PeriodMorning, "")
	if KindOf(err) != KindNotBusinessDay {
		t.Fatalf("expected NOT_BUSINESS_DAY, got %v", err)
	}
	if tk.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", tk.calls)
	}
}

func TestCheckSlotTodayIsTooSoon(t *testing.T) {
	tk := &countingTicketing{}
	e := newEngine(tk, time.Date(2025, 9, 22, 7, 0, 0, 0, time.UTC))
	order := models.ServiceOrder{ID: "os-1", SectorID: "s1", CreatedAt: day(2025, 9, 20)}

	_, err := e.CheckSlot(context.Background(), order, day(2025, 9, 22), models.PeriodAfternoon, "")
	if KindOf(err) != KindTooSoon {
		t.Fatalf("expected TOO_SOON, got %v", err)
	}
}

func TestCheckSlotInvalidPeriod(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 20))
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))

	_, err := e.CheckSlot(context.Background(), order, day(2025, 9, 24), models.Period("N"), "")
	if KindOf(err) != KindInvalidDate {
		t.Fatalf("expected INVALID_DATE, got %v", err)
	}
}

func TestCheckSlotCapacityScenario(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 10))
	friday := day(2025, 9, 19)
	addBooking(mem, "b1", "t1", friday, models.PeriodMorning)
	addBooking(mem, "b2", "t1", friday, models.PeriodMorning)
	e := newEngine(mem, time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC))

	_, err := e.CheckSlot(context.Background(), order, friday, models.PeriodMorning, "t1")
	if KindOf(err) != KindCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %v", err)
	}

	slot, err := e.CheckSlot(context.Background(), order, friday, models.PeriodMorning, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.TechnicianID != "t2" {
		t.Fatalf("expected fallback to t2, got %s", slot.TechnicianID)
	}

	addBooking(mem, "b3", "t2", friday, models.PeriodMorning)
	addBooking(mem, "b4", "t2", friday, models.PeriodMorning)
	if _, err := e.CheckSlot(context.Background(), order, friday, models.PeriodMorning, ""); KindOf(err) != KindCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED with every technician full, got %v", err)
	}
}

func TestCheckSlotWithoutTechnicians(t *testing.T) {
	mem := ticketing.NewMemory()
	order := models.ServiceOrder{ID: "os-1", SectorID: "empty", CreatedAt: day(2025, 9, 20)}
	mem.AddOrder(order)
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))

	if _, err := e.CheckSlot(context.Background(), order, day(2025, 9, 24), models.PeriodMorning, ""); KindOf(err) != KindCapacityExceeded {
		t.Fatalf("expected CAPACITY_EXCEEDED, got %v", err)
	}
}

func TestCheckSlotRejectsTechnicianOutsideSector(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 20))
	mem.AddTechnician(models.Technician{ID: "tx", SectorID: "other", Priority: 1})
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))

	for _, tech := range []string{"tx", "ghost"} {
		slot, err := e.CheckSlot(context.Background(), order, day(2025, 9, 24), models.PeriodMorning, tech)
		if KindOf(err) != KindCapacityExceeded {
			t.Fatalf("%s: expected CAPACITY_EXCEEDED, got slot %+v err %v", tech, slot, err)
		}
	}

	slot, err := e.CheckSlot(context.Background(), order, day(2025, 9, 24), models.PeriodMorning, "t2")
	if err != nil || slot.TechnicianID != "t2" {
		t.Fatalf("sector technician must still bind, got %+v %v", slot, err)
	}
}

func TestSuggestSlotIsDeterministic(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 20))
	tuesday := day(2025, 9, 23)
	for _, tech := range []string{"t1", "t2"} {
		addBooking(mem, tech+"-a", tech, tuesday, models.PeriodMorning)
		addBooking(mem, tech+"-b", tech, tuesday, models.PeriodMorning)
	}
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))

	first, err := e.SuggestSlot(context.Background(), order, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.Slot{Date: tuesday, Period: models.PeriodAfternoon, TechnicianID: "t1"}
	if !sameSlot(first, want) {
		t.Fatalf("expected %+v, got %+v", want, first)
	}
	for i := 0; i < 5; i++ {
		again, err := e.SuggestSlot(context.Background(), order, nil)
		if err != nil || !sameSlot(again, first) {
			t.Fatalf("run %d: expected %+v, got %+v (%v)", i, first, again, err)
		}
	}
}

func TestSuggestSlotAfterSkipsEarlierCombinations(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 20))
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))

	after := models.Slot{Date: day(2025, 9, 26), Period: models.PeriodAfternoon}
	got, err := e.SuggestSlot(context.Background(), order, &after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Date.Equal(day(2025, 9, 29)) || got.Period != models.PeriodMorning {
		t.Fatalf("expected monday morning after friday afternoon, got %+v", got)
	}
}

func TestSuggestSlotRespectsDeadline(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 10))
	e := newEngine(mem, time.Date(2025, 9, 24, 10, 0, 0, 0, time.UTC))
	thursday := day(2025, 9, 25)
	for _, tech := range []string{"t1", "t2"} {
		for i := 0; i < 2; i++ {
			addBooking(mem, tech+"-m"+string(rune('0'+i)), tech, thursday, models.PeriodMorning)
		}
		for i := 0; i < 3; i++ {
			addBooking(mem, tech+"-t"+string(rune('0'+i)), tech, thursday, models.PeriodAfternoon)
		}
	}

	_, err := e.SuggestSlot(context.Background(), order, nil)
	if KindOf(err) != KindNoAvailableSlot {
		t.Fatalf("expected NO_AVAILABLE_SLOT, got %v", err)
	}
	if d, ok := DeadlineOf(err); !ok || !d.Equal(thursday) {
		t.Fatalf("expected deadline %s, got %v", FormatDate(thursday), d)
	}
}

func TestSuggestSlotExpiredOrder(t *testing.T) {
	mem, order := seedSector(day(2025, 1, 1))
	e := newEngine(mem, time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC))

	if _, err := e.SuggestSlot(context.Background(), order, nil); KindOf(err) != KindSlaAlreadyExpired {
		t.Fatalf("expected SLA_ALREADY_EXPIRED, got %v", err)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	mem, order := seedSector(day(2025, 9, 20))
	e := newEngine(mem, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))
	slot := models.Slot{Date: day(2025, 9, 24), Period: models.PeriodAfternoon, TechnicianID: "t1"}

	if err := e.Commit(context.Background(), order, slot); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	stored, err := mem.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if err := e.Commit(context.Background(), stored, slot); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if n := mem.AssignCount(); n != 1 {
		t.Fatalf("expected a single assignment, got %d", n)
	}
	if stored.Status != ticketing.StatusScheduled || stored.TechnicianID != "t1" {
		t.Fatalf("unexpected stored order %+v", stored)
	}
}

func TestBackendTimeoutIsTransportError(t *testing.T) {
	tk := &countingTicketing{block: true}
	e := newEngine(tk, time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC))
	e.Timeout = 10 * time.Millisecond
	order := models.ServiceOrder{ID: "os-1", SectorID: "s1", CreatedAt: day(2025, 9, 20)}

	_, err := e.CheckSlot(context.Background(), order, day(2025, 9, 24), models.PeriodMorning, "")
	if KindOf(err) != KindTransportTimeout {
		t.Fatalf("expected TRANSPORT_TIMEOUT, got %v", err)
	}
	if !KindOf(err).Retryable() {
		t.Fatalf("transport errors must be retryable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}

func TestFindClientNotFoundPassesThrough(t *testing.T) {
	e := newEngine(ticketing.NewMemory(), time.Now())
	if _, err := e.FindClient(context.Background(), "00000000000"); !errors.Is(err, ticketing.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
