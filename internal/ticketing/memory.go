package ticketing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

// PeriodStartHour is the local hour a booked period starts at.
var PeriodStartHour = map[models.Period]int{
	models.PeriodMorning:   8,
	models.PeriodAfternoon: 13,
}

// PeriodLength is how long a booked period lasts.
const PeriodLength = 4 * time.Hour

// Memory is an in-process ticketing backend used in development and tests.
type Memory struct {
	mu          sync.RWMutex
	clients     map[string]models.Client
	orders      map[string]models.ServiceOrder
	technicians map[string]models.Technician

	assignCalls int
}

func NewMemory() *Memory {
	return &Memory{
		clients:     map[string]models.Client{},
		orders:      map[string]models.ServiceOrder{},
		technicians: map[string]models.Technician{},
	}
}

func (m *Memory) AddClient(c models.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *Memory) AddOrder(o models.ServiceOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *Memory) AddTechnician(t models.Technician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.technicians[t.ID] = t
}

func (m *Memory) FindClientByCPF(ctx context.Context, cpf string) (models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.CPF == cpf {
			return c, nil
		}
	}
	return models.Client{}, ErrNotFound
}

func (m *Memory) ListOpenOrders(ctx context.Context, clientID string) ([]models.ServiceOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ServiceOrder
	for _, o := range m.orders {
		if o.ClientID == clientID && o.Status != StatusScheduled {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (models.ServiceOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.ServiceOrder{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListTechnicians(ctx context.Context, sectorID string) ([]models.Technician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Technician
	for _, t := range m.technicians {
		if t.SectorID == sectorID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListScheduledOrders(ctx context.Context, sectorID string, from, to time.Time) ([]models.ServiceOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := to.AddDate(0, 0, 1)
	var out []models.ServiceOrder
	for _, o := range m.orders {
		if o.SectorID != sectorID || o.ScheduledStart == nil {
			continue
		}
		if o.ScheduledStart.Before(from) || !o.ScheduledStart.Before(end) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AssignSchedule(ctx context.Context, orderID string, date time.Time, period models.Period, technicianID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	start, end := PeriodWindow(date, period)
	o.TechnicianID = technicianID
	o.ScheduledStart = &start
	o.ScheduledEnd = &end
	o.Period = period
	o.Status = StatusScheduled
	m.orders[orderID] = o
	m.assignCalls++
	return nil
}

// PeriodWindow returns the start/end timestamps booked for a period.
func PeriodWindow(date time.Time, period models.Period) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), PeriodStartHour[period], 0, 0, 0, date.Location())
	return start, start.Add(PeriodLength)
}

// AssignCount reports how many times AssignSchedule reached the backend.
func (m *Memory) AssignCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assignCalls
}
