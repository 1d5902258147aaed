package domain

import (
	"encoding/json"
	"strings"
)

// FAQEntry is one curated question/answer pair.
type FAQEntry struct {
	Question string   `json:"q"`
	Answer   string   `json:"a"`
	Tags     []string `json:"tags,omitempty"`
	Evidence []string `json:"evidence,omitempty"`
}

// Knowledge is a read-only snapshot of the assistant's reference data.
type Knowledge struct {
	FAQ      []FAQEntry                 `json:"faq"`
	Synonyms map[string][]string        `json:"synonyms"`
	Sections map[string]json.RawMessage `json:"sections"`
}

// CanonicalStation maps a synonym (case-insensitive, exact) to its station
// name. Unknown names are returned unchanged.
func (k Knowledge) CanonicalStation(name string) string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return name
	}
	for station, synonyms := range k.Synonyms {
		if strings.ToLower(station) == needle {
			return station
		}
		for _, s := range synonyms {
			if strings.ToLower(strings.TrimSpace(s)) == needle {
				return station
			}
		}
	}
	return name
}
