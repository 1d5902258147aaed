package router

import (
	"sync"
	"time"
)

// SessionTracker remembers the calendar day each sender was last greeted.
// Safe for concurrent use.
type SessionTracker struct {
	mu         sync.Mutex
	greeted    map[string]time.Time // midnight of the greeting day, in loc
	maxEntries int
	retention  time.Duration
	loc        *time.Location
	now        func() time.Time
}

// NewSessionTracker creates a tracker that prunes records older than
// retention once more than maxEntries senders are tracked.
func NewSessionTracker(maxEntries int, retention time.Duration, loc *time.Location, now func() time.Time) *SessionTracker {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SessionTracker{
		greeted:    make(map[string]time.Time),
		maxEntries: maxEntries,
		retention:  retention,
		loc:        loc,
		now:        now,
	}
}

// ShouldGreet returns true at most once per sender per calendar day and
// records the greeting when it does.
func (s *SessionTracker) ShouldGreet(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.today()
	if last, ok := s.greeted[sender]; ok && last.Equal(today) {
		return false
	}
	s.greeted[sender] = today

	if len(s.greeted) > s.maxEntries {
		cutoff := today.Add(-s.retention)
		for id, day := range s.greeted {
			if day.Before(cutoff) {
				delete(s.greeted, id)
			}
		}
	}
	return true
}

// Len returns the number of tracked senders.
func (s *SessionTracker) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.greeted)
}

func (s *SessionTracker) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
