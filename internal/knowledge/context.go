package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"

	"metro-assistant/internal/domain"
	"metro-assistant/internal/metro"
)

const rulesReference = `FARE CALCULATION:
- Count stations between origin and destination (excluding origin, including destination)
- 1-3 stations: ₹15
- 4-7 stations: ₹25
- 8+ stations: ₹35
- Changing lines at the interchange: +₹5

DURATION CALCULATION:
- Direct routes: stations × 2.5 minutes
- Transfer routes: (stations × 2.5) + 7 minutes for the interchange

NEXT TRAIN TIMING:
- Peak hours (7-10 AM, 6-9 PM): every 5 minutes
- Off-peak hours: every 8-10 minutes
- First train: 06:00 AM, last train: 11:00 PM`

const closing = `Please provide a helpful, accurate response based on the Pune Metro knowledge base.
If the information is not available in the knowledge base, say so politely.
Keep responses concise and informative for WhatsApp format.`

// BuildContext renders the user-turn payload for a question: the knowledge
// snapshot, the station reference and the fare and duration rules. When the
// question names two resolvable stations the computed journey is included.
func BuildContext(k domain.Knowledge, g *metro.Graph, message string) string {
	var b strings.Builder

	b.WriteString("Pune Metro Knowledge Base:\n")
	b.WriteString(indentJSON(k.Sections, "{}"))
	b.WriteString("\n\nFAQ Data:\n")
	b.WriteString(indentJSON(k.FAQ, "[]"))
	b.WriteString("\n\nStation Synonyms:\n")
	b.WriteString(indentJSON(k.Synonyms, "{}"))
	fmt.Fprintf(&b, "\n\nUser Question: %s\n\n", message)

	b.WriteString("STATION NUMBERING REFERENCE:\n")
	b.WriteString(g.Describe())
	b.WriteString("\n\n")
	b.WriteString(rulesReference)
	b.WriteString("\n\n")

	if j, ok := QuoteJourney(k, g, message); ok {
		fmt.Fprintf(&b, "COMPUTED JOURNEY:\n%s\n\n", j.Summary())
	}

	b.WriteString(closing)
	return b.String()
}

// QuoteJourney resolves an "X to Y" question through the synonym table and
// the graph. ok is false when the question does not name two known stations.
func QuoteJourney(k domain.Knowledge, g *metro.Graph, message string) (metro.Journey, bool) {
	from, to, ok := metro.ParseJourneyQuery(message)
	if !ok {
		return metro.Journey{}, false
	}
	j, err := g.Journey(k.CanonicalStation(from), k.CanonicalStation(to))
	if err != nil {
		return metro.Journey{}, false
	}
	return j, true
}

func indentJSON(v any, empty string) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}
