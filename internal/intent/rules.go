package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/utils"
)

var (
	cpfRe       = regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	dayWordRe   = regexp.MustCompile(`\bdia (\d{1,2})\b`)
	bareNumRe   = regexp.MustCompile(`^\d{1,2}$`)
	morningRe   = regexp.MustCompile(`\b(manha|cedo|matutino)\b`)
	afternoonRe = regexp.MustCompile(`\b(tarde|vespertino)\b`)
	negativeRe  = regexp.MustCompile(`\b(nao|n|negativo|nenhuma|nunca)\b`)
	affirmRe    = regexp.MustCompile(`\b(sim|s|ok|pode|confirmo|confirma|confirmar|isso|claro|beleza|perfeito|fechado|certo|ta bom|esta bom)\b`)
	keepRe      = regexp.MustCompile(`\b(manter|mantem|mantenha|essa mesma|esse mesmo|a mesma|o mesmo|pode ser essa)\b`)
	anotherRe   = regexp.MustCompile(`\b(outra|outro|outras|outros|proxima disponivel|procurar)\b`)
	afterTomRe  = regexp.MustCompile(`\bdepois de amanha\b`)
	tomorrowRe  = regexp.MustCompile(`\bamanha\b`)
	todayRe     = regexp.MustCompile(`\bhoje\b`)
)

var weekdays = []struct {
	re  *regexp.Regexp
	day time.Weekday
}{
	{regexp.MustCompile(`\bsegunda\b`), time.Monday},
	{regexp.MustCompile(`\bterca\b`), time.Tuesday},
	{regexp.MustCompile(`\bquarta\b`), time.Wednesday},
	{regexp.MustCompile(`\bquinta\b`), time.Thursday},
	{regexp.MustCompile(`\bsexta\b`), time.Friday},
	{regexp.MustCompile(`\bsabado\b`), time.Saturday},
	{regexp.MustCompile(`\bdomingo\b`), time.Sunday},
}

// Rules is the built-in Portuguese extractor. It needs no network and is
// the fallback for every other extractor.
type Rules struct {
	Location *time.Location
	Now      func() time.Time
}

func (r Rules) today() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}

func (r Rules) Extract(_ context.Context, text string, session models.Session) (Intent, error) {
	folded := utils.Fold(text)
	today := r.today()
	var out Intent

	if m := cpfRe.FindString(folded); m != "" {
		out.CPF = utils.OnlyDigits(m)
	}

	if session.Stage == models.StageAwaitingOrderSelection {
		if bareNumRe.MatchString(folded) {
			out.OrderIndex, _ = strconv.Atoi(folded)
			return out, nil
		}
		for _, id := range session.OfferedOrders {
			if strings.Contains(folded, strings.ToLower(id)) {
				out.OrderID = id
				return out, nil
			}
		}
	}

	if out.CPF == "" {
		if bareNumRe.MatchString(folded) {
			out.DayOfMonth, _ = strconv.Atoi(folded)
			out.Date = dayOfMonth(today, out.DayOfMonth)
		} else {
			out.Date = parseDate(folded, today)
		}
	}

	switch {
	case morningRe.MatchString(folded):
		out.Period = models.PeriodMorning
	case afternoonRe.MatchString(folded):
		out.Period = models.PeriodAfternoon
	case folded == "m":
		out.Period = models.PeriodMorning
	case folded == "t":
		out.Period = models.PeriodAfternoon
	}

	out.Negative = negativeRe.MatchString(folded)
	out.Affirmative = !out.Negative && affirmRe.MatchString(folded)
	out.Keep = keepRe.MatchString(folded)
	out.Another = !out.Keep && anotherRe.MatchString(folded)
	return out, nil
}

func parseDate(folded string, today time.Time) *time.Time {
	loc := today.Location()
	if m := isoDateRe.FindStringSubmatch(folded); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return validDate(y, mo, d, loc)
	}
	if m := slashDateRe.FindStringSubmatch(folded); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			return validDate(y, mo, d, loc)
		}
		t := validDate(today.Year(), mo, d, loc)
		if t != nil && t.Before(today) {
			t = validDate(today.Year()+1, mo, d, loc)
		}
		return t
	}
	if m := dayWordRe.FindStringSubmatch(folded); m != nil {
		d, _ := strconv.Atoi(m[1])
		return dayOfMonth(today, d)
	}
	switch {
	case afterTomRe.MatchString(folded):
		t := today.AddDate(0, 0, 2)
		return &t
	case tomorrowRe.MatchString(folded):
		t := today.AddDate(0, 0, 1)
		return &t
	case todayRe.MatchString(folded):
		return &today
	}
	for _, w := range weekdays {
		if w.re.MatchString(folded) {
			ahead := (int(w.day) - int(today.Weekday()) + 7) % 7
			if ahead == 0 {
				ahead = 7
			}
			t := today.AddDate(0, 0, ahead)
			return &t
		}
	}
	return nil
}

// dayOfMonth resolves a bare day number to its next occurrence: this month
// when still ahead, otherwise next month.
func dayOfMonth(today time.Time, day int) *time.Time {
	if day < 1 || day > 31 {
		return nil
	}
	if day >= today.Day() {
		if t := validDate(today.Year(), int(today.Month()), day, today.Location()); t != nil {
			return t
		}
	}
	next := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, today.Location())
	return validDate(next.Year(), int(next.Month()), day, today.Location())
}

func validDate(y, m, d int, loc *time.Location) *time.Time {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != m {
		return nil
	}
	return &t
}
