// Package router turns inbound messages into replies: duplicate suppression,
// per-sender session and context state, intent classification and dispatch
// with a local fallback when the completion service cannot answer.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"metro-assistant/internal/domain"
	"metro-assistant/internal/intent"
	"metro-assistant/internal/metro"
	"metro-assistant/internal/replies"
)

const (
	defaultDedupCapacity     = 100
	defaultDedupRecentWindow = 5 * time.Second
	defaultDedupHorizon      = 30 * time.Second
	defaultSessionCap        = 1000
	defaultSessionRetention  = 30 * 24 * time.Hour
	defaultContextMaxEntries = 5
	defaultContextTTL        = time.Hour
	defaultContextLookback   = 3
	defaultDelegateTimeout   = 10 * time.Second
)

// Completer answers free-form questions given a knowledge context payload.
type Completer interface {
	Complete(ctx context.Context, message, knowledgeContext string) (string, error)
}

// KnowledgeSource returns the current knowledge snapshot.
type KnowledgeSource interface {
	Knowledge(ctx context.Context) domain.Knowledge
}

// Config holds the router's tuning constants. Zero values take defaults.
type Config struct {
	DedupCapacity     int
	DedupRecentWindow time.Duration
	DedupHorizon      time.Duration
	SessionCap        int
	SessionRetention  time.Duration
	ContextMaxEntries int
	ContextTTL        time.Duration
	ContextLookback   int // entries consulted for contextual button replies
	DelegateTimeout   time.Duration
	Location          *time.Location // calendar used for daily greetings
}

func (c Config) withDefaults() Config {
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = defaultDedupCapacity
	}
	if c.DedupRecentWindow <= 0 {
		c.DedupRecentWindow = defaultDedupRecentWindow
	}
	if c.DedupHorizon <= 0 {
		c.DedupHorizon = defaultDedupHorizon
	}
	if c.SessionCap <= 0 {
		c.SessionCap = defaultSessionCap
	}
	if c.SessionRetention <= 0 {
		c.SessionRetention = defaultSessionRetention
	}
	if c.ContextMaxEntries <= 0 {
		c.ContextMaxEntries = defaultContextMaxEntries
	}
	if c.ContextTTL <= 0 {
		c.ContextTTL = defaultContextTTL
	}
	if c.ContextLookback <= 0 {
		c.ContextLookback = defaultContextLookback
	}
	if c.DelegateTimeout <= 0 {
		c.DelegateTimeout = defaultDelegateTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Option configures a Router.
type Option func(*Router)

// WithClock injects the time source shared by all router state.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithGraph replaces the route graph used for journey quotes.
func WithGraph(g *metro.Graph) Option {
	return func(r *Router) { r.graph = g }
}

// Router owns all mutable assistant state. It is safe for concurrent use;
// each table has its own lock and none is held across the completion call.
type Router struct {
	completer Completer
	knowledge KnowledgeSource
	catalog   *replies.Catalog
	graph     *metro.Graph
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger

	dedup    *DedupWindow
	sessions *SessionTracker
	contexts *ContextLog
	stats    counters
}

// New creates a Router.
func New(c Completer, k KnowledgeSource, catalog *replies.Catalog, cfg Config, opts ...Option) (*Router, error) {
	if c == nil {
		return nil, errors.New("router: completer must not be nil")
	}
	if k == nil {
		return nil, errors.New("router: knowledge source must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("router: catalog must not be nil")
	}
	r := &Router{
		completer: c,
		knowledge: k,
		catalog:   catalog,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.graph == nil {
		r.graph = metro.Pune()
	}

	r.dedup = NewDedupWindow(r.cfg.DedupCapacity, r.cfg.DedupRecentWindow, r.cfg.DedupHorizon, r.now)
	r.sessions = NewSessionTracker(r.cfg.SessionCap, r.cfg.SessionRetention, r.cfg.Location, r.now)
	r.contexts = NewContextLog(r.cfg.ContextMaxEntries, r.cfg.ContextTTL, r.now)
	return r, nil
}

// Route processes one inbound message. It never fails: duplicates are
// suppressed and every other message yields a non-empty reply.
func (r *Router) Route(ctx context.Context, msg domain.InboundMessage) domain.Outcome {
	if !r.dedup.ShouldProcess(msg) {
		r.stats.suppressed.Add(1)
		r.logger.Debug("duplicate message suppressed", "sender", msg.Sender, "message_id", msg.ID)
		return domain.Outcome{Kind: domain.OutcomeSuppressed}
	}
	r.stats.processed.Add(1)

	res := intent.Classify(intent.Input{
		Text:        msg.Body,
		Button:      msg.Kind == domain.KindButton,
		GreetingDue: func() bool { return r.sessions.ShouldGreet(msg.Sender) },
	})

	var out domain.Outcome
	if res.Intent.Canned() {
		var recent []ContextEntry
		if msg.Kind == domain.KindButton {
			recent = r.contexts.Recent(msg.Sender, r.cfg.ContextLookback)
		}
		out = domain.Outcome{
			Kind:   domain.OutcomeReplied,
			Reply:  r.cannedReply(res, msg.Kind == domain.KindButton, recent),
			Intent: res.Intent,
			Rule:   res.Tag,
		}
	} else {
		out = r.delegate(ctx, msg.Body)
		out.Rule = res.Tag
	}

	if res.Tag != intent.TagButtonMenu {
		r.contexts.Record(msg.Sender, msg.Body, res.Tag, res.Intent)
	}

	r.logger.Info("message routed",
		"sender", msg.Sender,
		"message_id", msg.ID,
		"intent", string(out.Intent),
		"rule", out.Rule,
		"fallback", out.Fallback,
	)
	return out
}

// Stats returns a snapshot of the router's counters.
func (r *Router) Stats() Stats {
	return r.stats.snapshot()
}
