package metro

import (
	"fmt"
	"strings"
)

var fillerWords = map[string]bool{
	"fare": true, "fares": true, "cost": true, "price": true, "ticket": true,
	"from": true, "between": true, "what": true, "whats": true, "is": true,
	"the": true, "of": true, "for": true, "how": true, "much": true,
	"and": true, "a": true, "station": true,
}

// ParseJourneyQuery extracts the two endpoints of an "X to Y" question.
// Filler words such as "fare" or "from" are dropped from both sides.
func ParseJourneyQuery(text string) (from, to string, ok bool) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, " to ")
	if idx < 0 {
		return "", "", false
	}
	from = stripFiller(lower[:idx])
	to = stripFiller(lower[idx+len(" to "):])
	if from == "" || to == "" {
		return "", "", false
	}
	return from, to, true
}

func stripFiller(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '?' || r == '!' || r == ',' || r == '.' || r == '\t' || r == '\n'
	})
	kept := words[:0]
	for _, w := range words {
		w = strings.Trim(w, "'\"")
		if w == "" || fillerWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Summary renders a one-paragraph quote for a journey.
func (j Journey) Summary() string {
	route := j.FromLine
	if j.Transfer {
		route = fmt.Sprintf("%s, change at %s to the %s", j.FromLine, j.Via, j.ToLine)
	}
	return fmt.Sprintf("%s to %s: %d stations (%s), fare ₹%d, about %s minutes.",
		j.From, j.To, j.Stops, route, j.Fare, formatMinutes(j.Minutes))
}

func formatMinutes(m float64) string {
	if m == float64(int(m)) {
		return fmt.Sprintf("%d", int(m))
	}
	return fmt.Sprintf("%.1f", m)
}
