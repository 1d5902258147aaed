// Package knowledge serves the reference data handed to the completion
// service and builds the context payload around a question.
package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"metro-assistant/internal/domain"
)

// Loader reads a full knowledge snapshot from the backing store.
type Loader interface {
	LoadKnowledge(ctx context.Context) (domain.Knowledge, error)
}

const defaultLoadTimeout = 10 * time.Second

// Provider caches the last good snapshot and reloads it once per refresh
// interval. A failed load keeps serving the previous snapshot (empty before
// the first success). Loads run in the background under their own timeout;
// callers wait only as long as their context allows.
type Provider struct {
	loader      Loader
	refresh     time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.RWMutex
	snapshot domain.Knowledge
	loadedAt time.Time
	loaded   bool
	pending  chan struct{} // closed when the running load finishes
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderClock overrides the clock used for refresh decisions.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// WithProviderLogger sets the logger used for load failures.
func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithLoadTimeout bounds a single load, independent of any caller deadline.
func WithLoadTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.loadTimeout = d
		}
	}
}

// NewProvider creates a provider. A non-positive refresh loads once.
func NewProvider(loader Loader, refresh time.Duration, opts ...ProviderOption) (*Provider, error) {
	if loader == nil {
		return nil, errors.New("knowledge: loader must not be nil")
	}
	p := &Provider{
		loader:      loader,
		refresh:     refresh,
		loadTimeout: defaultLoadTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Knowledge returns the current snapshot, reloading it when stale. Only one
// load runs at a time. If ctx ends before the load does, the previous
// snapshot is returned and the load keeps going for later callers.
func (p *Provider) Knowledge(ctx context.Context) domain.Knowledge {
	p.mu.RLock()
	if p.fresh() {
		k := p.snapshot
		p.mu.RUnlock()
		return k
	}
	p.mu.RUnlock()

	p.mu.Lock()
	if p.fresh() {
		k := p.snapshot
		p.mu.Unlock()
		return k
	}
	done := p.pending
	if done == nil {
		done = make(chan struct{})
		p.pending = done
		go p.reload(context.WithoutCancel(ctx), done)
	}
	prev := p.snapshot
	p.mu.Unlock()

	select {
	case <-done:
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.snapshot
	case <-ctx.Done():
		p.logger.Warn("knowledge load still running, serving previous snapshot", "err", ctx.Err())
		return prev
	}
}

func (p *Provider) reload(ctx context.Context, done chan struct{}) {
	ctx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()

	k, err := p.loader.LoadKnowledge(ctx)

	p.mu.Lock()
	p.loadedAt = p.now()
	p.loaded = true
	p.pending = nil
	if err != nil {
		p.logger.Warn("knowledge load failed, serving previous snapshot", "err", err)
	} else {
		p.snapshot = k
	}
	p.mu.Unlock()
	close(done)
}

func (p *Provider) fresh() bool {
	if !p.loaded {
		return false
	}
	if p.refresh <= 0 {
		return true
	}
	return p.now().Sub(p.loadedAt) < p.refresh
}
