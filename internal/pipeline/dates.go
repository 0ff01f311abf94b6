package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// weekdays maps Spanish and English day names to time.Weekday.
var weekdays = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"miércoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var tomorrowTokens = []string{"mañana", "manana", "tomorrow"}

var (
	hourMinuteRe   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	hourMeridiemRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)\b`)
	bareHourRe     = regexp.MustCompile(`(?i)\b(?:a las|at)\s+(\d{1,2})\b`)
	partySizeRe    = regexp.MustCompile(`(?i)\b(?:para|for|somos|seremos)\s+(\d{1,2})\b|\b(\d{1,2})\s+(?:personas|persons|people|pax)\b`)
	numericDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
)

// ResolveDate finds a calendar date in free text relative to now. Relative
// weekday names resolve to the next future occurrence of that weekday; a
// weekday matching today resolves to seven days out. An explicit "tomorrow"
// token takes precedence over weekday names. Numeric dd/mm forms are also
// accepted. Returns the zero time when nothing matched.
func ResolveDate(text string, now time.Time) time.Time {
	lower := strings.ToLower(text)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, tok := range tomorrowTokens {
		if containsWord(lower, tok) {
			return today.AddDate(0, 0, 1)
		}
	}
	if containsWord(lower, "hoy") || containsWord(lower, "today") {
		return today
	}

	for name, wd := range weekdays {
		if !containsWord(lower, name) {
			continue
		}
		days := int(wd-today.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days)
	}

	if m := numericDateRe.FindStringSubmatch(lower); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
			if m[3] == "" && date.Before(today) {
				date = date.AddDate(1, 0, 0)
			}
			return date
		}
	}

	return time.Time{}
}

// ParseTimeOfDay finds an "HH:MM" time in free text. Accepts "HH:MM",
// "H pm" (converted to 24-hour) and bare hours after "a las"/"at". Returns
// empty when nothing matched.
func ParseTimeOfDay(text string) string {
	if m := hourMeridiemRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			var minute int
			if m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			meridiem := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
			if meridiem == "pm" && hour != 12 {
				hour += 12
			}
			if meridiem == "am" && hour == 12 {
				hour = 0
			}
			return formatClock(hour, minute)
		}
	}
	if m := hourMinuteRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 23 && minute <= 59 {
			return formatClock(hour, minute)
		}
	}
	if m := bareHourRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour <= 23 {
			return formatClock(hour, 0)
		}
	}
	return ""
}

// ParsePartySize finds a party-size integer in free text. Returns 0 when
// nothing matched.
func ParsePartySize(text string) int {
	m := partySizeRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func formatClock(hour, minute int) string {
	return pad2(hour) + ":" + pad2(minute)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// containsWord matches a token at word boundaries without compiling a regex
// per lookup.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
