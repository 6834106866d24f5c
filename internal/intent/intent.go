// Package intent turns free text into a structured, non-authoritative guess.
// Callers must validate every date and period it returns.
package intent

import (
	"context"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

type Intent struct {
	Date   *time.Time    `json:"date,omitempty"`
	Period models.Period `json:"period,omitempty"`
	// DayOfMonth is set when the text is nothing but a day number, e.g. "25".
	DayOfMonth  int    `json:"day_of_month,omitempty"`
	Affirmative bool   `json:"affirmative,omitempty"`
	Negative    bool   `json:"negative,omitempty"`
	Keep        bool   `json:"keep,omitempty"`
	Another     bool   `json:"another,omitempty"`
	CPF         string `json:"cpf,omitempty"`
	// OrderIndex is 1-based into the orders offered to the sender.
	OrderIndex int    `json:"order_index,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
}

func (i Intent) HasDate() bool {
	return i.Date != nil
}

type Extractor interface {
	Extract(ctx context.Context, text string, session models.Session) (Intent, error)
}
