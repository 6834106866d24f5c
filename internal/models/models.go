package models

import "time"

type Period string

const (
	PeriodMorning   Period = "M"
	PeriodAfternoon Period = "T"
)

// Periods is the fixed search order used when walking a day.
var Periods = []Period{PeriodMorning, PeriodAfternoon}

func (p Period) Valid() bool {
	return p == PeriodMorning || p == PeriodAfternoon
}

type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	CPF  string `json:"cpf"`
}

type ServiceOrder struct {
	ID             string     `json:"id"`
	ClientID       string     `json:"client_id"`
	SubjectCode    string     `json:"subject_code"`
	SectorID       string     `json:"sector_id"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	TechnicianID   string     `json:"technician_id,omitempty"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	Period         Period     `json:"period,omitempty"`
}

type Technician struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SectorID string `json:"sector_id"`
	Priority int    `json:"priority"`
}

type PeriodCapacity struct {
	M int `json:"M" mapstructure:"M"`
	T int `json:"T" mapstructure:"T"`
}

func (c PeriodCapacity) For(p Period) int {
	if p == PeriodAfternoon {
		return c.T
	}
	return c.M
}

type SchedulingPolicy struct {
	Priority        int            `json:"priority" mapstructure:"priority"`
	MinLeadDays     int            `json:"min_lead_days" mapstructure:"min_lead_days"`
	MaxLeadDays     int            `json:"max_lead_days" mapstructure:"max_lead_days"`
	DefaultCapacity PeriodCapacity `json:"default_capacity" mapstructure:"default_capacity"`
}

type CapacityMode string

const (
	ModeInstallation CapacityMode = "installation"
	ModeMaintenance  CapacityMode = "maintenance"
)

type SectorCapacityPolicy struct {
	Mode        CapacityMode   `json:"mode" mapstructure:"mode"`
	DailyLimit  int            `json:"daily_limit" mapstructure:"daily_limit"`
	PeriodLimit PeriodCapacity `json:"period_limit" mapstructure:"period_limit"`
}

// Slot is a (date, period, technician) triple. Date is local midnight.
type Slot struct {
	Date         time.Time `json:"date"`
	Period       Period    `json:"period"`
	TechnicianID string    `json:"technician_id"`
}

type Stage string

const (
	StageAwaitingClientID       Stage = "AWAITING_CLIENT_ID"
	StageAwaitingOrderSelection Stage = "AWAITING_ORDER_SELECTION"
	StageAwaitingDate           Stage = "AWAITING_DATE"
	StageAwaitingPeriod         Stage = "AWAITING_PERIOD"
	StageAwaitingAltDateConfirm Stage = "AWAITING_ALT_DATE_CONFIRMATION"
	StageScheduled              Stage = "SCHEDULED"
)

type QuestionKind string

const (
	QuestionCPF            QuestionKind = "CPF"
	QuestionOrder          QuestionKind = "ORDER"
	QuestionDate           QuestionKind = "DATE"
	QuestionPeriod         QuestionKind = "PERIOD"
	QuestionConfirmAltDate QuestionKind = "CONFIRM_ALT_DATE"
)

// Session is the per-sender conversation state. Candidate* hold what was
// interpreted from the user, Suggested* what the system last proposed.
type Session struct {
	Sender               string       `json:"sender"`
	Stage                Stage        `json:"stage"`
	ClientID             string       `json:"client_id,omitempty"`
	OrderID              string       `json:"order_id,omitempty"`
	OfferedOrders        []string     `json:"offered_orders,omitempty"`
	CandidateDate        *time.Time   `json:"candidate_date,omitempty"`
	CandidatePeriod      Period       `json:"candidate_period,omitempty"`
	SuggestedDate        *time.Time   `json:"suggested_date,omitempty"`
	SuggestedPeriod      Period       `json:"suggested_period,omitempty"`
	SuggestedTechnician  string       `json:"suggested_technician,omitempty"`
	AwaitingConfirmation bool         `json:"awaiting_confirmation"`
	LastQuestion         QuestionKind `json:"last_question,omitempty"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// InboundMessage is the uniform event delivered by the transport adapter.
type InboundMessage struct {
	Sender    string `json:"sender" binding:"required"`
	Text      string `json:"text" binding:"required"`
	MessageID string `json:"message_id"`
}

func (s Session) Clone() Session {
	out := s
	if s.CandidateDate != nil {
		d := *s.CandidateDate
		out.CandidateDate = &d
	}
	if s.SuggestedDate != nil {
		d := *s.SuggestedDate
		out.SuggestedDate = &d
	}
	if s.OfferedOrders != nil {
		out.OfferedOrders = append([]string(nil), s.OfferedOrders...)
	}
	return out
}

// Policies holds the static scheduling tables loaded at process start.
type Policies struct {
	Subjects map[string]SchedulingPolicy     `json:"subjects" mapstructure:"subjects"`
	Sectors  map[string]SectorCapacityPolicy `json:"sectors" mapstructure:"sectors"`
}
