package service

import (
	"strings"
	"time"

	"github.com/agenda_os/backend/internal/models"
)

const WildcardSubject = "*"

// DefaultSchedulingPolicy applies when neither the subject nor the wildcard
// entry is configured.
var DefaultSchedulingPolicy = models.SchedulingPolicy{
	MinLeadDays:     1,
	MaxLeadDays:     15,
	DefaultCapacity: models.PeriodCapacity{M: 2, T: 3},
}

func SubjectPolicy(policies models.Policies, subjectCode string) models.SchedulingPolicy {
	if p, ok := policies.Subjects[strings.TrimSpace(subjectCode)]; ok {
		return p
	}
	if p, ok := policies.Subjects[WildcardSubject]; ok {
		return p
	}
	return DefaultSchedulingPolicy
}

// SlaDeadline is the creation day plus MaxLeadDays calendar days.
func SlaDeadline(order models.ServiceOrder, policy models.SchedulingPolicy, loc *time.Location) time.Time {
	return DateOf(order.CreatedAt, loc).AddDate(0, 0, policy.MaxLeadDays)
}

// SlaExpired fails when today is already past the deadline, whatever date
// the user asked for.
func SlaExpired(order models.ServiceOrder, policy models.SchedulingPolicy, now time.Time, loc *time.Location) error {
	deadline := SlaDeadline(order, policy, loc)
	if DateOf(now, loc).After(deadline) {
		return deadlineError(KindSlaAlreadyExpired, deadline)
	}
	return nil
}

func ValidateSla(order models.ServiceOrder, candidate time.Time, policy models.SchedulingPolicy, loc *time.Location) error {
	deadline := SlaDeadline(order, policy, loc)
	if DateOf(candidate, loc).After(deadline) {
		return deadlineError(KindSlaExceeded, deadline)
	}
	return nil
}
