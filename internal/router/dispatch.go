package router

import (
	"slices"
	"strings"

	"metro-assistant/internal/domain"
	"metro-assistant/internal/intent"
)

// cannedReply answers intents served from the catalog. Button selections are
// personalized with the first matching entry of recent (oldest first).
func (r *Router) cannedReply(res intent.Result, button bool, recent []ContextEntry) domain.Reply {
	c := r.catalog
	switch res.Intent {
	case domain.IntentGreeting:
		return domain.Reply{Text: c.Welcome, Options: slices.Clone(c.WelcomeOptions)}
	case domain.IntentShowRoutes:
		if button {
			if e, ok := firstMatch(recent, isRouteContext); ok {
				return domain.Reply{Text: c.Contextual(e.Text, "route", c.RouteDetail)}
			}
		}
		return domain.Reply{Text: c.Routes}
	case domain.IntentShowFares:
		if button {
			if e, ok := firstMatch(recent, isFareContext); ok {
				return domain.Reply{Text: c.Contextual(e.Text, "fare", c.FareDetail)}
			}
		}
		return domain.Reply{Text: c.Fares}
	case domain.IntentShowSchedule:
		if button {
			if e, ok := firstMatch(recent, isScheduleContext); ok {
				return domain.Reply{Text: c.Contextual(e.Text, "schedule", c.ScheduleDetail)}
			}
		}
		return domain.Reply{Text: c.Schedule}
	case domain.IntentShowFestival:
		return domain.Reply{Text: c.Festival}
	default:
		return domain.Reply{Text: c.Menu, Options: slices.Clone(c.MenuOptions)}
	}
}

func firstMatch(entries []ContextEntry, match func(ContextEntry) bool) (ContextEntry, bool) {
	for _, e := range entries {
		if match(e) {
			return e, true
		}
	}
	return ContextEntry{}, false
}

func isRouteContext(e ContextEntry) bool {
	switch e.Tag {
	case intent.TagStationQuery, intent.TagRouteInfo, intent.TagStationInfo:
		return true
	}
	return containsAny(e.Text, "station", "route")
}

func isFareContext(e ContextEntry) bool {
	switch e.Tag {
	case intent.TagFareQuery, intent.TagFareInfo:
		return true
	}
	return containsAny(e.Text, "fare", "cost", "price")
}

func isScheduleContext(e ContextEntry) bool {
	if e.Tag == intent.TagScheduleInfo {
		return true
	}
	return containsAny(e.Text, "time", "schedule", "hour")
}

func containsAny(text string, words ...string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
