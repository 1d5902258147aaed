// Package intent classifies inbound messages with an ordered keyword cascade.
//
// The cascade is data: Rules is evaluated top to bottom and the first match
// wins. Keyword sets overlap, so the order is part of the behavior.
package intent

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"metro-assistant/internal/domain"
)

const (
	shortStationQueryLen = 15
	longQueryLen         = 20
)

var (
	greetingWords = []string{"hi", "hello", "hey", "start", "begin", "help", "menu", "options"}

	domainKeywords = []string{
		"metro", "route", "station", "fare", "ticket", "line", "time", "schedule",
		"pune", "pcmc", "swargate", "vanaz", "ramwadi", "civil court",
	}

	stationListingCues = []string{
		"which stations", "stations on", "list all", "all stations",
		"complete", "detailed", "how many", "what stations",
	}

	fareBetweenWords = []string{"fare", "cost", "price"}
	fareWords        = []string{"fare", "cost", "price", "ticket"}
	scheduleWords    = []string{"time", "schedule", "hour"}
	festivalWords    = []string{"ganesh", "festival", "ganeshotsav"}
)

// Input is one message as seen by the classifier.
type Input struct {
	Text   string // text body, or button id when Button is set
	Button bool
	// GreetingDue reports whether the sender may be greeted today. It is only
	// consulted once the text is a genuine greeting, so implementations may
	// record the greeting as a side effect.
	GreetingDue func() bool
}

// Message is the normalized view rules match against.
type Message struct {
	Text   string // trimmed, lower-cased
	Length int    // runes in Text
	Button bool
	Slot   int // button slot, -1 when absent or unparsable

	greetingDue func() bool
}

// Normalize prepares an Input for matching.
func Normalize(in Input) Message {
	text := strings.ToLower(strings.TrimSpace(in.Text))
	m := Message{
		Text:        text,
		Length:      utf8.RuneCountInString(text),
		Button:      in.Button,
		Slot:        -1,
		greetingDue: in.GreetingDue,
	}
	if in.Button {
		m.Slot = ButtonSlot(text)
	}
	return m
}

// GreetingDue evaluates the sender's greeting allowance.
func (m Message) GreetingDue() bool {
	return m.greetingDue != nil && m.greetingDue()
}

// Has reports whether the text contains s.
func (m Message) Has(s string) bool { return strings.Contains(m.Text, s) }

// HasAny reports whether the text contains any of words.
func (m Message) HasAny(words []string) bool {
	for _, w := range words {
		if strings.Contains(m.Text, w) {
			return true
		}
	}
	return false
}

// Rule maps a predicate to an intent. Tag names the rule in the context log.
type Rule struct {
	Tag    string
	Intent domain.Intent
	Match  func(m Message) bool
}

// Result is the outcome of classification.
type Result struct {
	Intent domain.Intent
	Tag    string
}

const (
	TagWelcome        = "welcome"
	TagFareQuery      = "fare_query"
	TagStationQuery   = "station_query"
	TagRouteInfo      = "route_info"
	TagStationInfo    = "station_info"
	TagFareInfo       = "fare_info"
	TagScheduleInfo   = "schedule_info"
	TagFestivalInfo   = "festival_info"
	TagAIResponse     = "ai_response"
	TagButtonRoute    = "button_route"
	TagButtonFare     = "button_fare"
	TagButtonSchedule = "button_schedule"
	TagButtonFestival = "button_festival"
	TagButtonMenu     = "button_menu"
)

// Rules is the classification cascade in precedence order.
var Rules = []Rule{
	{Tag: TagButtonRoute, Intent: domain.IntentShowRoutes, Match: buttonSlot(0)},
	{Tag: TagButtonFare, Intent: domain.IntentShowFares, Match: buttonSlot(1)},
	{Tag: TagButtonSchedule, Intent: domain.IntentShowSchedule, Match: buttonSlot(2)},
	{Tag: TagButtonFestival, Intent: domain.IntentShowFestival, Match: buttonSlot(3)},
	{Tag: TagButtonMenu, Intent: domain.IntentShowMenu, Match: func(m Message) bool { return m.Button }},
	{Tag: TagWelcome, Intent: domain.IntentGreeting, Match: func(m Message) bool {
		return IsGenuineGreeting(m) && m.GreetingDue()
	}},
	{Tag: TagFareQuery, Intent: domain.IntentDelegateToAI, Match: func(m Message) bool {
		return m.Has(" to ") && m.HasAny(fareBetweenWords)
	}},
	{Tag: TagStationQuery, Intent: domain.IntentDelegateToAI, Match: func(m Message) bool {
		return m.HasAny(stationListingCues) || m.Length > longQueryLen
	}},
	{Tag: TagRouteInfo, Intent: domain.IntentShowRoutes, Match: func(m Message) bool {
		return m.Has("route") || m.Has("line")
	}},
	{Tag: TagStationInfo, Intent: domain.IntentShowRoutes, Match: func(m Message) bool {
		return m.Has("station") && m.Length < shortStationQueryLen
	}},
	{Tag: TagFareInfo, Intent: domain.IntentShowFares, Match: func(m Message) bool {
		return m.HasAny(fareWords) && !m.Has(" to ")
	}},
	{Tag: TagScheduleInfo, Intent: domain.IntentShowSchedule, Match: func(m Message) bool {
		return m.HasAny(scheduleWords)
	}},
	{Tag: TagFestivalInfo, Intent: domain.IntentShowFestival, Match: func(m Message) bool {
		return m.HasAny(festivalWords)
	}},
	{Tag: TagAIResponse, Intent: domain.IntentDelegateToAI, Match: func(Message) bool { return true }},
}

// Classify runs the cascade over in.
func Classify(in Input) Result {
	return ClassifyWith(Rules, Normalize(in))
}

// ClassifyWith evaluates rules against m and returns the first match. An
// empty rule set, or one with no match, yields DelegateToAI.
func ClassifyWith(rules []Rule, m Message) Result {
	for _, r := range rules {
		if r.Match(m) {
			return Result{Intent: r.Intent, Tag: r.Tag}
		}
	}
	return Result{Intent: domain.IntentDelegateToAI, Tag: TagAIResponse}
}

// IsGenuineGreeting accepts one- or two-word messages containing a greeting
// word, or longer messages that start with one and mention nothing
// transit-related.
func IsGenuineGreeting(m Message) bool {
	if m.Button {
		return false
	}
	if len(strings.Fields(m.Text)) <= 2 {
		return m.HasAny(greetingWords)
	}
	if m.HasAny(domainKeywords) {
		return false
	}
	for _, g := range greetingWords {
		if strings.HasPrefix(m.Text, g) {
			return true
		}
	}
	return false
}

// ButtonSlot parses "qr_N" or "btn_N" button ids. It returns -1 otherwise.
func ButtonSlot(id string) int {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range []string{"qr_", "btn_"} {
		if rest, ok := strings.CutPrefix(id, prefix); ok {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 {
				return -1
			}
			return n
		}
	}
	return -1
}

func buttonSlot(slot int) func(Message) bool {
	return func(m Message) bool { return m.Button && m.Slot == slot }
}
