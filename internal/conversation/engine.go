// Package conversation drives the per-sender scheduling dialogue: identify
// the client, pick an order, agree on a date and period, then commit.
package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/dedup"
	"github.com/agenda_os/backend/internal/intent"
	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/service"
	"github.com/agenda_os/backend/internal/ticketing"
	"github.com/agenda_os/backend/internal/utils"
)

type Engine struct {
	Availability *service.AvailabilityEngine
	Extractor    intent.Extractor
	Sessions     SessionStore
	// Dedup is optional; without it every event is processed.
	Dedup       *dedup.Guard
	PhoneRegion string
	Logger      zerolog.Logger
	Now         func() time.Time

	locks senderLocks
}

type Reply struct {
	Text      string       `json:"reply"`
	Stage     models.Stage `json:"stage"`
	Duplicate bool         `json:"-"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// HandleMessage runs one conversation turn. A retryable backend failure is
// answered with a transient message and leaves the stored session as it was.
func (e *Engine) HandleMessage(ctx context.Context, msg models.InboundMessage) (Reply, error) {
	msg.Sender = utils.NormalizePhone(msg.Sender, e.PhoneRegion)
	log := e.Logger.With().Str("sender", msg.Sender).Str("message_id", msg.MessageID).Logger()

	key := dedup.KeyFor(msg)
	if e.Dedup != nil {
		dup, err := e.Dedup.Seen(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("dedup store unavailable, processing event")
		} else if dup {
			return Reply{Duplicate: true}, nil
		}
	}

	unlock := e.locks.lock(msg.Sender)
	defer unlock()

	stored, ok, err := e.Sessions.Get(ctx, msg.Sender)
	if err != nil {
		e.forget(ctx, key, log)
		return Reply{}, err
	}
	if !ok {
		stored = models.Session{Sender: msg.Sender, Stage: models.StageAwaitingClientID}
	}
	s := stored.Clone()

	in, err := e.Extractor.Extract(ctx, msg.Text, s)
	if err != nil {
		log.Warn().Err(err).Msg("intent extraction failed")
		in = intent.Intent{}
	}

	text, err := e.step(ctx, &s, in, msg.Text)
	if err != nil {
		e.forget(ctx, key, log)
		if service.KindOf(err).Retryable() {
			log.Warn().Err(err).Str("stage", string(stored.Stage)).Msg("transient failure, session left unchanged")
			return Reply{Text: msgTransient, Stage: stored.Stage}, nil
		}
		return Reply{}, err
	}

	s.UpdatedAt = e.now()
	if err := e.Sessions.Put(ctx, s); err != nil {
		e.forget(ctx, key, log)
		return Reply{}, err
	}
	log.Info().Str("from", string(stored.Stage)).Str("to", string(s.Stage)).Msg("turn handled")
	return Reply{Text: text, Stage: s.Stage}, nil
}

func (e *Engine) forget(ctx context.Context, key string, log zerolog.Logger) {
	if e.Dedup == nil {
		return
	}
	if err := e.Dedup.Forget(ctx, key); err != nil {
		log.Warn().Err(err).Msg("could not release dedup key")
	}
}

// requireIdentity guards every transition that touches order data.
func requireIdentity(s *models.Session) error {
	if s.ClientID == "" {
		return &service.Error{Kind: service.KindMissingClientID}
	}
	if s.OrderID == "" {
		return &service.Error{Kind: service.KindMissingOrderSelection}
	}
	return nil
}

func (e *Engine) step(ctx context.Context, s *models.Session, in intent.Intent, text string) (string, error) {
	if err := requireIdentity(s); err != nil {
		switch service.KindOf(err) {
		case service.KindMissingClientID:
			return e.identify(ctx, s, in, text)
		default:
			return e.selectOrder(ctx, s, in)
		}
	}

	if s.Stage == models.StageScheduled && s.SuggestedDate != nil {
		return msgAlreadyScheduled(*s.SuggestedDate, s.SuggestedPeriod), nil
	}

	order, err := e.Availability.Order(ctx, s.OrderID)
	if errors.Is(err, ticketing.ErrNotFound) {
		e.Logger.Info().Str("order_id", s.OrderID).Msg("selected order vanished, selecting again")
		s.OrderID = ""
		return e.selectOrder(ctx, s, intent.Intent{})
	}
	if err != nil {
		return "", err
	}

	switch s.Stage {
	case models.StageAwaitingDate:
		return e.onDate(ctx, s, order, in)
	case models.StageAwaitingPeriod:
		return e.onPeriod(ctx, s, order, in, text)
	case models.StageAwaitingAltDateConfirm:
		return e.onConfirm(ctx, s, order, in)
	default:
		return e.offerSuggestion(ctx, s, order, nil)
	}
}

func (e *Engine) identify(ctx context.Context, s *models.Session, in intent.Intent, text string) (string, error) {
	s.Stage = models.StageAwaitingClientID
	s.LastQuestion = models.QuestionCPF

	cpf := in.CPF
	if cpf == "" {
		if d := utils.OnlyDigits(text); len(d) == 11 {
			cpf = d
		}
	}
	if cpf == "" {
		return msgAskCPF, nil
	}
	if !utils.ValidCPF(cpf) {
		return msgInvalidCPF, nil
	}
	client, err := e.Availability.FindClient(ctx, cpf)
	if errors.Is(err, ticketing.ErrNotFound) {
		return msgClientNotFound, nil
	}
	if err != nil {
		return "", err
	}
	s.ClientID = client.ID
	return e.selectOrder(ctx, s, intent.Intent{})
}

func (e *Engine) selectOrder(ctx context.Context, s *models.Session, in intent.Intent) (string, error) {
	orders, err := e.Availability.OpenOrders(ctx, s.ClientID)
	if err != nil {
		return "", err
	}
	s.Stage = models.StageAwaitingOrderSelection
	s.LastQuestion = models.QuestionOrder
	if len(orders) == 0 {
		s.OfferedOrders = nil
		return msgNoOpenOrders, nil
	}

	chosen := ""
	switch {
	case len(orders) == 1:
		chosen = orders[0].ID
	case in.OrderIndex >= 1 && in.OrderIndex <= len(s.OfferedOrders):
		chosen = s.OfferedOrders[in.OrderIndex-1]
	case in.OrderID != "":
		chosen = in.OrderID
	}
	for _, o := range orders {
		if o.ID == chosen {
			s.OrderID = o.ID
			s.OfferedOrders = nil
			return e.offerSuggestion(ctx, s, o, nil)
		}
	}

	s.OfferedOrders = make([]string, len(orders))
	for i, o := range orders {
		s.OfferedOrders[i] = o.ID
	}
	return msgOrderList(orders), nil
}

// offerSuggestion proposes the first valid slot (after the given one, if
// any) and waits for confirmation.
func (e *Engine) offerSuggestion(ctx context.Context, s *models.Session, order models.ServiceOrder, after *models.Slot) (string, error) {
	slot, err := e.Availability.SuggestSlot(ctx, order, after)
	if err != nil {
		return e.explain(s, order, models.Slot{}, err)
	}
	date := slot.Date
	candidate := slot.Date
	s.SuggestedDate = &date
	s.SuggestedPeriod = slot.Period
	s.SuggestedTechnician = slot.TechnicianID
	s.CandidateDate = &candidate
	s.CandidatePeriod = slot.Period
	s.AwaitingConfirmation = true
	s.Stage = models.StageAwaitingAltDateConfirm
	s.LastQuestion = models.QuestionConfirmAltDate
	return msgSuggest(slot), nil
}

// proposeSlot validates an explicit (date, period) and asks for
// confirmation. It never commits.
func (e *Engine) proposeSlot(ctx context.Context, s *models.Session, order models.ServiceOrder, date time.Time, period models.Period) (string, error) {
	slot, err := e.Availability.CheckSlot(ctx, order, date, period, "")
	if err != nil {
		return e.explain(s, order, models.Slot{Date: date, Period: period}, err)
	}
	d := slot.Date
	s.CandidateDate = &d
	s.CandidatePeriod = slot.Period
	s.SuggestedTechnician = slot.TechnicianID
	s.AwaitingConfirmation = true
	s.Stage = models.StageAwaitingAltDateConfirm
	s.LastQuestion = models.QuestionConfirmAltDate
	return msgConfirm(slot), nil
}

// acceptDate stores a date that arrived without a period and asks for one.
func (e *Engine) acceptDate(s *models.Session, order models.ServiceOrder, date time.Time) (string, error) {
	if err := e.Availability.CheckDate(order, date); err != nil {
		return e.explain(s, order, models.Slot{Date: date}, err)
	}
	day := service.DateOf(date, date.Location())
	candidate, suggested := day, day
	s.CandidateDate = &candidate
	s.CandidatePeriod = ""
	s.SuggestedDate = &suggested
	s.SuggestedPeriod = ""
	s.SuggestedTechnician = ""
	s.AwaitingConfirmation = false
	s.Stage = models.StageAwaitingPeriod
	s.LastQuestion = models.QuestionPeriod
	return msgAskPeriod(day), nil
}

func (e *Engine) onDate(ctx context.Context, s *models.Session, order models.ServiceOrder, in intent.Intent) (string, error) {
	switch {
	case in.HasDate() && in.Period != "":
		return e.proposeSlot(ctx, s, order, *in.Date, in.Period)
	case in.HasDate():
		return e.acceptDate(s, order, *in.Date)
	case hasSuggestion(s) && (in.Keep || in.Affirmative):
		return e.proposeSlot(ctx, s, order, *s.SuggestedDate, s.SuggestedPeriod)
	case in.Another:
		return e.offerSuggestion(ctx, s, order, previousSuggestion(s))
	}
	s.Stage = models.StageAwaitingDate
	s.LastQuestion = models.QuestionDate
	return msgAskDate, nil
}

func (e *Engine) onPeriod(ctx context.Context, s *models.Session, order models.ServiceOrder, in intent.Intent, text string) (string, error) {
	if s.CandidateDate == nil {
		s.Stage = models.StageAwaitingDate
		return e.onDate(ctx, s, order, in)
	}
	pending := *s.CandidateDate

	// A bare day number equal to the pending day confirms the date, it is
	// not a new one, whatever the extractor made of it. Month boundaries
	// are not disambiguated.
	if n := bareDayNumber(text); n != 0 && n == pending.Day() {
		return msgAskPeriod(pending), nil
	}
	if in.Period != "" {
		date := pending
		if in.HasDate() && in.DayOfMonth == 0 && !sameDay(*in.Date, pending) {
			date = *in.Date
		}
		return e.proposeSlot(ctx, s, order, date, in.Period)
	}
	if in.DayOfMonth != 0 && in.DayOfMonth == pending.Day() {
		return msgAskPeriod(pending), nil
	}
	if in.HasDate() && !sameDay(*in.Date, pending) {
		return e.acceptDate(s, order, *in.Date)
	}
	return msgAskPeriodClarified(pending), nil
}

func (e *Engine) onConfirm(ctx context.Context, s *models.Session, order models.ServiceOrder, in intent.Intent) (string, error) {
	if s.CandidateDate == nil || s.CandidatePeriod == "" {
		return e.offerSuggestion(ctx, s, order, nil)
	}
	pending := *s.CandidateDate

	// An explicit new date or period is validated and offered, never
	// committed on the same turn.
	if in.HasDate() && !sameDay(*in.Date, pending) {
		return e.onDate(ctx, s, order, in)
	}
	if in.Period != "" && in.Period != s.CandidatePeriod {
		return e.proposeSlot(ctx, s, order, pending, in.Period)
	}

	switch {
	case in.Negative:
		s.CandidateDate = nil
		s.CandidatePeriod = ""
		s.AwaitingConfirmation = false
		s.Stage = models.StageAwaitingDate
		s.LastQuestion = models.QuestionDate
		return msgDeclined(s.SuggestedDate, s.SuggestedPeriod), nil
	case in.Another:
		after := models.Slot{Date: pending, Period: s.CandidatePeriod}
		return e.offerSuggestion(ctx, s, order, &after)
	case in.Affirmative || in.Keep:
		return e.commit(ctx, s, order)
	}
	return msgAskConfirmAgain(pending, s.CandidatePeriod), nil
}

// commit re-validates the pending tuple against fresh occupancy, books it and
// mirrors it into both the candidate and suggested fields.
func (e *Engine) commit(ctx context.Context, s *models.Session, order models.ServiceOrder) (string, error) {
	pending := models.Slot{Date: *s.CandidateDate, Period: s.CandidatePeriod}
	slot, err := e.Availability.CheckSlot(ctx, order, pending.Date, pending.Period, s.SuggestedTechnician)
	if service.KindOf(err) == service.KindCapacityExceeded && s.SuggestedTechnician != "" {
		slot, err = e.Availability.CheckSlot(ctx, order, pending.Date, pending.Period, "")
	}
	if err != nil {
		return e.explain(s, order, pending, err)
	}
	if err := e.Availability.Commit(ctx, order, slot); err != nil {
		return "", err
	}
	candidate, suggested := slot.Date, slot.Date
	s.CandidateDate = &candidate
	s.SuggestedDate = &suggested
	s.CandidatePeriod = slot.Period
	s.SuggestedPeriod = slot.Period
	s.SuggestedTechnician = slot.TechnicianID
	s.AwaitingConfirmation = false
	s.Stage = models.StageScheduled
	s.LastQuestion = ""
	return msgScheduled(slot.Date, slot.Period), nil
}

// explain turns a validation failure into a clarification and moves the
// conversation back to date selection. Retryable failures are returned.
// rejected holds what was being validated; its fields may be zero.
func (e *Engine) explain(s *models.Session, order models.ServiceOrder, rejected models.Slot, err error) (string, error) {
	kind := service.KindOf(err)
	if kind == "" || kind.Retryable() {
		return "", err
	}
	e.Logger.Debug().Str("sender", s.Sender).Str("order_id", order.ID).Str("kind", string(kind)).Msg("slot rejected")

	var text string
	switch kind {
	case service.KindNotBusinessDay:
		text = msgNotBusinessDay(rejected.Date)
	case service.KindTooSoon:
		policy := e.Availability.Policy(order)
		text = msgTooSoon(service.MinSchedulableDate(e.now(), policy.MinLeadDays, e.Availability.Location))
	case service.KindSlaExceeded:
		deadline, _ := service.DeadlineOf(err)
		text = msgSlaExceeded(deadline)
	case service.KindSlaAlreadyExpired:
		text = msgSlaExpired
	case service.KindNoAvailableSlot:
		deadline, _ := service.DeadlineOf(err)
		text = msgNoSlot(deadline)
	case service.KindCapacityExceeded:
		text = msgCapacity(rejected.Date, rejected.Period)
	default:
		text = msgInvalidDate
	}

	s.CandidateDate = nil
	s.CandidatePeriod = ""
	s.AwaitingConfirmation = false
	s.Stage = models.StageAwaitingDate
	s.LastQuestion = models.QuestionDate
	if kind == service.KindSlaAlreadyExpired || kind == service.KindNoAvailableSlot {
		return text, nil
	}
	if hasSuggestion(s) {
		return text + " " + msgOfferSearchMore, nil
	}
	return text + " " + msgAskDate, nil
}

func hasSuggestion(s *models.Session) bool {
	return s.SuggestedDate != nil && s.SuggestedPeriod != ""
}

func previousSuggestion(s *models.Session) *models.Slot {
	if !hasSuggestion(s) {
		return nil
	}
	return &models.Slot{Date: *s.SuggestedDate, Period: s.SuggestedPeriod, TechnicianID: s.SuggestedTechnician}
}

// bareDayNumber returns the number when text is nothing but a one or two
// digit number, optionally with punctuation around it, and 0 otherwise.
func bareDayNumber(text string) int {
	folded := strings.Trim(utils.Fold(text), " .,;:!?")
	if folded == "" || len(folded) > 2 || utils.OnlyDigits(folded) != folded {
		return 0
	}
	n, err := strconv.Atoi(folded)
	if err != nil || n < 1 || n > 31 {
		return 0
	}
	return n
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
