package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/ticketing"
)

const defaultCallTimeout = 5 * time.Second

// AvailabilityEngine validates candidate slots, searches for the next valid
// one and commits assignments. It is the only component that talks to the
// ticketing backend, and every call it makes is bounded by Timeout.
type AvailabilityEngine struct {
	Ticketing ticketing.Client
	Policies  models.Policies
	Location  *time.Location
	Timeout   time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (e *AvailabilityEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *AvailabilityEngine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

func (e *AvailabilityEngine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Today is the current calendar day in the engine's location.
func (e *AvailabilityEngine) Today() time.Time {
	return DateOf(e.now(), e.loc())
}

func (e *AvailabilityEngine) Policy(order models.ServiceOrder) models.SchedulingPolicy {
	return SubjectPolicy(e.Policies, order.SubjectCode)
}

func (e *AvailabilityEngine) Deadline(order models.ServiceOrder) time.Time {
	return SlaDeadline(order, e.Policy(order), e.loc())
}

// CheckDate runs the date-level checks in order: validity, business day,
// not today/too soon, SLA. No ticketing call is made.
func (e *AvailabilityEngine) CheckDate(order models.ServiceOrder, date time.Time) error {
	if date.IsZero() {
		return newError(KindInvalidDate)
	}
	policy := e.Policy(order)
	now := e.now()
	day := DateOf(date, e.loc())
	if !IsBusinessDay(day) {
		return newError(KindNotBusinessDay)
	}
	if IsTodayOrPast(day, now) || day.Before(MinSchedulableDate(now, policy.MinLeadDays, e.loc())) {
		return newError(KindTooSoon)
	}
	if err := SlaExpired(order, policy, now, e.loc()); err != nil {
		return err
	}
	return ValidateSla(order, day, policy, e.loc())
}

// CheckSlot validates (date, period) for the order and binds a technician.
// With an empty technicianID the sector's technicians are tried in priority
// order. Capacity is evaluated last, against a fresh occupancy read.
func (e *AvailabilityEngine) CheckSlot(ctx context.Context, order models.ServiceOrder, date time.Time, period models.Period, technicianID string) (models.Slot, error) {
	if !period.Valid() {
		return models.Slot{}, &Error{Kind: KindInvalidDate, Op: "period " + string(period)}
	}
	if err := e.CheckDate(order, date); err != nil {
		return models.Slot{}, err
	}
	day := DateOf(date, e.loc())

	techs, err := e.Technicians(ctx, order.SectorID)
	if err != nil {
		return models.Slot{}, err
	}
	occ, err := e.Occupancy(ctx, order, day, day)
	if err != nil {
		return models.Slot{}, err
	}
	return e.bind(order, day, period, techs, technicianID, occ)
}

func (e *AvailabilityEngine) bind(order models.ServiceOrder, day time.Time, period models.Period, techs []models.Technician, technicianID string, occ Occupancy) (models.Slot, error) {
	sector := SectorPolicy(e.Policies, order.SectorID, e.Policy(order))
	tech, ok := PickTechnician(sector, techs, technicianID, day, period, occ)
	if !ok {
		return models.Slot{}, newError(KindCapacityExceeded)
	}
	return models.Slot{Date: day, Period: period, TechnicianID: tech}, nil
}

// SuggestSlot walks business days from the minimum schedulable date, periods
// M then T, technicians in priority order, and returns the first valid
// combination. When after is set only combinations strictly later than it
// are considered. The result is deterministic for a given occupancy and now.
func (e *AvailabilityEngine) SuggestSlot(ctx context.Context, order models.ServiceOrder, after *models.Slot) (models.Slot, error) {
	policy := e.Policy(order)
	now := e.now()
	if err := SlaExpired(order, policy, now, e.loc()); err != nil {
		return models.Slot{}, err
	}
	deadline := SlaDeadline(order, policy, e.loc())
	start := MinSchedulableDate(now, policy.MinLeadDays, e.loc())
	if after != nil {
		if a := DateOf(after.Date, e.loc()); a.After(start) {
			start = a
		}
	}
	if start.After(deadline) {
		return models.Slot{}, deadlineError(KindNoAvailableSlot, deadline)
	}

	techs, err := e.Technicians(ctx, order.SectorID)
	if err != nil {
		return models.Slot{}, err
	}
	occ, err := e.Occupancy(ctx, order, start, deadline)
	if err != nil {
		return models.Slot{}, err
	}

	for day := NextBusinessDay(start); !day.After(deadline); day = NextBusinessDay(day.AddDate(0, 0, 1)) {
		if e.CheckDate(order, day) != nil {
			continue
		}
		for _, period := range models.Periods {
			if after != nil && !slotAfter(day, period, *after, e.loc()) {
				continue
			}
			if slot, err := e.bind(order, day, period, techs, "", occ); err == nil {
				return slot, nil
			}
		}
	}
	e.Logger.Info().Str("order_id", order.ID).Time("deadline", deadline).Msg("no slot before sla deadline")
	return models.Slot{}, deadlineError(KindNoAvailableSlot, deadline)
}

func slotAfter(day time.Time, period models.Period, after models.Slot, loc *time.Location) bool {
	a := DateOf(after.Date, loc)
	if !day.Equal(a) {
		return day.After(a)
	}
	return periodIndex(period) > periodIndex(after.Period)
}

func periodIndex(p models.Period) int {
	for i, q := range models.Periods {
		if q == p {
			return i
		}
	}
	return -1
}

// Commit asks the ticketing backend to bind the slot. Committing a slot the
// order already holds is a no-op, so a repeated confirmation never books
// twice.
func (e *AvailabilityEngine) Commit(ctx context.Context, order models.ServiceOrder, slot models.Slot) error {
	if holdsSlot(order, slot, e.loc()) {
		e.Logger.Debug().Str("order_id", order.ID).Msg("slot already committed")
		return nil
	}
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.Ticketing.AssignSchedule(cctx, order.ID, slot.Date, slot.Period, slot.TechnicianID); err != nil {
		return transportError("assign schedule", err)
	}
	e.Logger.Info().
		Str("order_id", order.ID).
		Str("date", FormatDate(slot.Date)).
		Str("period", string(slot.Period)).
		Str("technician_id", slot.TechnicianID).
		Msg("schedule committed")
	return nil
}

func holdsSlot(order models.ServiceOrder, slot models.Slot, loc *time.Location) bool {
	if order.ScheduledStart == nil || order.TechnicianID != slot.TechnicianID {
		return false
	}
	period := order.Period
	if period == "" {
		period = models.PeriodMorning
	}
	return period == slot.Period && DateOf(*order.ScheduledStart, loc).Equal(DateOf(slot.Date, loc))
}

// Occupancy reads the sector's scheduled orders for [from, to] and derives
// per-technician counts, excluding the order itself.
func (e *AvailabilityEngine) Occupancy(ctx context.Context, order models.ServiceOrder, from, to time.Time) (Occupancy, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	orders, err := e.Ticketing.ListScheduledOrders(cctx, order.SectorID, from, to)
	if err != nil {
		return nil, transportError("list scheduled orders", err)
	}
	return BuildOccupancy(orders, order.ID, e.loc()), nil
}

func (e *AvailabilityEngine) Technicians(ctx context.Context, sectorID string) ([]models.Technician, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	techs, err := e.Ticketing.ListTechnicians(cctx, sectorID)
	if err != nil {
		return nil, transportError("list technicians", err)
	}
	return techs, nil
}

// FindClient resolves a CPF. A missing client is reported as
// ticketing.ErrNotFound, anything else as a retryable transport failure.
func (e *AvailabilityEngine) FindClient(ctx context.Context, cpf string) (models.Client, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	c, err := e.Ticketing.FindClientByCPF(cctx, cpf)
	if err != nil {
		if errors.Is(err, ticketing.ErrNotFound) {
			return models.Client{}, err
		}
		return models.Client{}, transportError("find client", err)
	}
	return c, nil
}

func (e *AvailabilityEngine) OpenOrders(ctx context.Context, clientID string) ([]models.ServiceOrder, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	orders, err := e.Ticketing.ListOpenOrders(cctx, clientID)
	if err != nil {
		return nil, transportError("list open orders", err)
	}
	return orders, nil
}

func (e *AvailabilityEngine) Order(ctx context.Context, orderID string) (models.ServiceOrder, error) {
	cctx, cancel := e.withTimeout(ctx)
	defer cancel()
	o, err := e.Ticketing.GetOrder(cctx, orderID)
	if err != nil {
		if errors.Is(err, ticketing.ErrNotFound) {
			return models.ServiceOrder{}, err
		}
		return models.ServiceOrder{}, transportError("get order", err)
	}
	return o, nil
}
