package router

import "sync/atomic"

// Stats is a point-in-time view of routing counters.
type Stats struct {
	Processed  int64
	Suppressed int64
	Delegated  int64
	Fallbacks  int64
}

type counters struct {
	processed  atomic.Int64
	suppressed atomic.Int64
	delegated  atomic.Int64
	fallbacks  atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Processed:  c.processed.Load(),
		Suppressed: c.suppressed.Load(),
		Delegated:  c.delegated.Load(),
		Fallbacks:  c.fallbacks.Load(),
	}
}
