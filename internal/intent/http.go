package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/models"
)

// HTTPExtractor asks an external interpretation service and falls back to
// Fallback when the service fails or answers with nothing usable.
type HTTPExtractor struct {
	BaseURL  string
	Client   *http.Client
	Fallback Extractor
	Location *time.Location
	Logger   zerolog.Logger
}

type requestBody struct {
	Text         string `json:"text"`
	Stage        string `json:"stage"`
	LastQuestion string `json:"last_question"`
	PendingDate  string `json:"pending_date,omitempty"`
}

type responseBody struct {
	Date        string `json:"date"`
	Period      string `json:"period"`
	DayOfMonth  int    `json:"day_of_month"`
	Affirmative bool   `json:"affirmative"`
	Negative    bool   `json:"negative"`
	Keep        bool   `json:"keep"`
	Another     bool   `json:"another"`
	CPF         string `json:"cpf"`
	OrderIndex  int    `json:"order_index"`
	OrderID     string `json:"order_id"`
}

func (h HTTPExtractor) Extract(ctx context.Context, text string, session models.Session) (Intent, error) {
	out, err := h.call(ctx, text, session)
	if err == nil {
		return out, nil
	}
	if h.Fallback == nil {
		return Intent{}, err
	}
	h.Logger.Warn().Err(err).Str("sender", session.Sender).Msg("extractor unavailable, using rules")
	return h.Fallback.Extract(ctx, text, session)
}

func (h HTTPExtractor) call(ctx context.Context, text string, session models.Session) (Intent, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	payload := requestBody{
		Text:         text,
		Stage:        string(session.Stage),
		LastQuestion: string(session.LastQuestion),
	}
	if session.CandidateDate != nil {
		payload.PendingDate = session.CandidateDate.Format("2006-01-02")
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/extract", bytes.NewBuffer(b))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Intent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Intent{}, errors.New("extractor service error")
	}

	var r responseBody
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Intent{}, err
	}

	out := Intent{
		Period:      models.Period(r.Period),
		DayOfMonth:  r.DayOfMonth,
		Affirmative: r.Affirmative,
		Negative:    r.Negative,
		Keep:        r.Keep,
		Another:     r.Another,
		CPF:         r.CPF,
		OrderIndex:  r.OrderIndex,
		OrderID:     r.OrderID,
	}
	if !out.Period.Valid() {
		out.Period = ""
	}
	if r.Date != "" {
		loc := h.Location
		if loc == nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation("2006-01-02", r.Date, loc); err == nil {
			out.Date = &t
		}
	}
	return out, nil
}
