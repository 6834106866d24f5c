package utils

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultPhoneRegion = "BR"

// NormalizePhone formats a sender number to E.164. Input that does not parse
// as a valid number is returned trimmed, so the session key stays stable.
func NormalizePhone(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	// Messaging providers often send the number without the leading +.
	candidate := trimmed
	if !strings.HasPrefix(candidate, "+") && len(OnlyDigits(candidate)) > 11 {
		candidate = "+" + OnlyDigits(candidate)
	}
	number, err := phonenumbers.Parse(candidate, region)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
