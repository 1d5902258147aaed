package router

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"metro-assistant/internal/domain"
)

// DedupKey derives the stable key for (sender, kind, normalized body).
func DedupKey(msg domain.InboundMessage) string {
	body := strings.Join(strings.Fields(strings.ToLower(msg.Body)), " ")
	h := xxhash.New()
	_, _ = h.WriteString(msg.Sender)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(string(msg.Kind))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(body)
	return msg.Sender + "_" + string(msg.Kind) + "_" + strconv.FormatUint(h.Sum64(), 16)
}

// DedupWindow suppresses redelivered messages. It keeps a bounded FIFO set of
// seen keys plus a recency map; either one rejects a repeat. Both forget a key
// once it is older than the horizon, so a sender repeating a message after
// that is treated as new. Safe for concurrent use.
type DedupWindow struct {
	mu       sync.Mutex
	capacity int
	recent   time.Duration
	horizon  time.Duration
	now      func() time.Time

	order    []seenKey
	seen     map[string]struct{}
	lastSeen map[string]time.Time
}

type seenKey struct {
	key string
	at  time.Time
}

// NewDedupWindow creates a window holding at most capacity keys, rejecting
// repeats seen within recent and forgetting entries older than horizon.
func NewDedupWindow(capacity int, recent, horizon time.Duration, now func() time.Time) *DedupWindow {
	if now == nil {
		now = time.Now
	}
	return &DedupWindow{
		capacity: capacity,
		recent:   recent,
		horizon:  horizon,
		now:      now,
		order:    make([]seenKey, 0, capacity+1),
		seen:     make(map[string]struct{}, capacity+1),
		lastSeen: make(map[string]time.Time),
	}
}

// ShouldProcess reports whether msg is new. Accepting a message records it,
// so the check and the insert are one atomic step.
func (d *DedupWindow) ShouldProcess(msg domain.InboundMessage) bool {
	key := DedupKey(msg)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if _, ok := d.seen[key]; ok {
		return false
	}
	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < d.recent {
		return false
	}

	d.seen[key] = struct{}{}
	d.order = append(d.order, seenKey{key: key, at: now})
	d.lastSeen[key] = now

	for len(d.order) > d.capacity {
		delete(d.seen, d.order[0].key)
		d.order = d.order[1:]
	}
	return true
}

// expire drops keys older than the horizon from both tables. Caller holds mu.
func (d *DedupWindow) expire(now time.Time) {
	for len(d.order) > 0 && now.Sub(d.order[0].at) > d.horizon {
		delete(d.seen, d.order[0].key)
		d.order = d.order[1:]
	}
	for k, ts := range d.lastSeen {
		if now.Sub(ts) > d.horizon {
			delete(d.lastSeen, k)
		}
	}
}

// Len returns the number of keys in the FIFO set and the recency map.
func (d *DedupWindow) Len() (fifo, recent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen), len(d.lastSeen)
}
