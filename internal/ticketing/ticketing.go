// Package ticketing describes the external system that owns service orders
// and technician schedules. The scheduler only reads orders and requests
// schedule updates through this interface.
package ticketing

import (
	"context"
	"errors"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

var ErrNotFound = errors.New("ticketing: not found")

const StatusScheduled = "AGENDADO"

type Client interface {
	FindClientByCPF(ctx context.Context, cpf string) (models.Client, error)
	ListOpenOrders(ctx context.Context, clientID string) ([]models.ServiceOrder, error)
	GetOrder(ctx context.Context, orderID string) (models.ServiceOrder, error)
	// ListTechnicians returns the technicians linked to a sector.
	ListTechnicians(ctx context.Context, sectorID string) ([]models.Technician, error)
	// ListScheduledOrders returns orders of the sector scheduled within
	// [from, to] (calendar days, inclusive).
	ListScheduledOrders(ctx context.Context, sectorID string, from, to time.Time) ([]models.ServiceOrder, error)
	AssignSchedule(ctx context.Context, orderID string, date time.Time, period models.Period, technicianID string) error
}
