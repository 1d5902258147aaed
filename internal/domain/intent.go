package domain

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentShowRoutes   Intent = "show_routes"
	IntentShowFares    Intent = "show_fares"
	IntentShowSchedule Intent = "show_schedule"
	IntentShowFestival Intent = "show_festival"
	IntentShowMenu     Intent = "show_menu"
	IntentDelegateToAI Intent = "delegate_to_ai"
)

// Canned reports whether the intent is answered from the static catalog.
func (i Intent) Canned() bool {
	return i != IntentDelegateToAI && i != ""
}
