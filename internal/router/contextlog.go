package router

import (
	"sync"
	"time"

	"metro-assistant/internal/domain"
)

// ContextEntry is one classified message in a sender's recent history.
type ContextEntry struct {
	Sender string
	Text   string
	Tag    string
	Intent domain.Intent
	At     time.Time
}

// ContextLog keeps the last few classified messages per sender. Expired
// entries are swept across all senders on every access.
// Safe for concurrent use.
type ContextLog struct {
	mu         sync.Mutex
	entries    map[string][]ContextEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewContextLog creates a log keeping maxEntries per sender for ttl.
func NewContextLog(maxEntries int, ttl time.Duration, now func() time.Time) *ContextLog {
	if now == nil {
		now = time.Now
	}
	return &ContextLog{
		entries:    make(map[string][]ContextEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        now,
	}
}

// Record appends an entry for sender and trims the log.
func (l *ContextLog) Record(sender, text, tag string, in domain.Intent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	list := append(l.entries[sender], ContextEntry{
		Sender: sender,
		Text:   text,
		Tag:    tag,
		Intent: in,
		At:     now,
	})
	if len(list) > l.maxEntries {
		list = append([]ContextEntry(nil), list[len(list)-l.maxEntries:]...)
	}
	l.entries[sender] = list
	l.sweep(now)
}

// Recent returns up to limit live entries for sender, most recent last.
func (l *ContextLog) Recent(sender string, limit int) []ContextEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(l.now())
	list := l.entries[sender]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]ContextEntry(nil), list...)
}

// Senders returns the number of senders with live entries.
func (l *ContextLog) Senders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ContextLog) sweep(now time.Time) {
	cutoff := now.Add(-l.ttl)
	for sender, list := range l.entries {
		kept := list[:0]
		for _, e := range list {
			if e.At.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(l.entries, sender)
			continue
		}
		l.entries[sender] = kept
	}
}
