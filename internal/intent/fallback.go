package intent

import "metro-assistant/internal/domain"

const (
	TagFallbackFareBetween = "fallback_fare_between"
	TagFallbackRoute       = "fallback_route"
	TagFallbackFare        = "fallback_fare"
	TagFallbackSchedule    = "fallback_schedule"
)

// FallbackRules is the reduced rescan used when the completion service
// cannot answer.
var FallbackRules = []Rule{
	{Tag: TagFallbackFareBetween, Intent: domain.IntentShowFares, Match: func(m Message) bool {
		return m.Has(" to ") && m.Has("fare")
	}},
	{Tag: TagFallbackRoute, Intent: domain.IntentShowRoutes, Match: func(m Message) bool {
		return m.Has("route") || m.Has("station")
	}},
	{Tag: TagFallbackFare, Intent: domain.IntentShowFares, Match: func(m Message) bool {
		return m.HasAny(fareBetweenWords)
	}},
	{Tag: TagFallbackSchedule, Intent: domain.IntentShowSchedule, Match: func(m Message) bool {
		return m.Has("time") || m.Has("schedule")
	}},
}

// Rescan classifies text against FallbackRules. ok is false when nothing
// matched.
func Rescan(text string) (Result, bool) {
	m := Normalize(Input{Text: text})
	for _, r := range FallbackRules {
		if r.Match(m) {
			return Result{Intent: r.Intent, Tag: r.Tag}, true
		}
	}
	return Result{}, false
}
