package router

import (
	"context"
	"errors"
	"slices"
	"strings"

	"metro-assistant/internal/domain"
	"metro-assistant/internal/intent"
	"metro-assistant/internal/knowledge"
	"metro-assistant/internal/metro"
	"metro-assistant/internal/replies"
)

// DelegateResult is the tagged outcome of one completion attempt.
type DelegateResult struct {
	Status domain.DelegateStatus
	Text   string
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type malformedError interface {
	Malformed() bool
}

type timeoutError interface {
	Timeout() bool
}

func (r *Router) delegate(ctx context.Context, message string) domain.Outcome {
	r.stats.delegated.Add(1)

	res, k := r.attempt(ctx, message)

	out := domain.Outcome{
		Kind:     domain.OutcomeDelegated,
		Intent:   domain.IntentDelegateToAI,
		Delegate: res.Status,
	}
	if res.Status == domain.DelegateOK {
		out.Reply = domain.Reply{Text: res.Text}
		return out
	}

	r.stats.fallbacks.Add(1)
	out.Reply = Fallback(r.catalog, r.graph, k, message)
	out.Fallback = true
	return out
}

// attempt makes exactly one completion call. The delegate timeout covers the
// knowledge read and the call together, and holds even if either ignores its
// context. The returned knowledge is empty when the read did not finish.
func (r *Router) attempt(ctx context.Context, message string) (DelegateResult, domain.Knowledge) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.DelegateTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	loaded := make(chan domain.Knowledge, 1)
	done := make(chan reply, 1)
	go func() {
		k := r.knowledge.Knowledge(callCtx)
		loaded <- k
		if err := callCtx.Err(); err != nil {
			done <- reply{err: err}
			return
		}
		text, err := r.completer.Complete(callCtx, message, knowledge.BuildContext(k, r.graph, message))
		done <- reply{text: text, err: err}
	}()

	var got reply
	select {
	case got = <-done:
	case <-callCtx.Done():
		got = reply{err: callCtx.Err()}
	}

	var k domain.Knowledge
	select {
	case k = <-loaded:
	default:
	}

	if got.err != nil {
		status := classifyDelegateError(got.err)
		attrs := []any{"status", string(status), "err", got.err}
		if code, ok := upstreamStatusCode(got.err); ok {
			attrs = append(attrs, "status_code", code)
		}
		r.logger.Warn("completion failed, using fallback", attrs...)
		return DelegateResult{Status: status}, k
	}
	text := strings.TrimSpace(got.text)
	if text == "" {
		r.logger.Warn("completion returned empty text, using fallback")
		return DelegateResult{Status: domain.DelegateMalformed}, k
	}
	return DelegateResult{Status: domain.DelegateOK, Text: text}, k
}

func classifyDelegateError(err error) domain.DelegateStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.DelegateTimedOut
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return domain.DelegateTimedOut
	}
	var me malformedError
	if errors.As(err, &me) && me.Malformed() {
		return domain.DelegateMalformed
	}
	return domain.DelegateServiceError
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// Fallback picks a local reply for a question the completion service could
// not answer. It never returns empty text.
func Fallback(c *replies.Catalog, g *metro.Graph, k domain.Knowledge, message string) domain.Reply {
	res, ok := intent.Rescan(message)
	if !ok {
		return domain.Reply{Text: c.Generic(message), Options: slices.Clone(c.MenuOptions)}
	}
	switch res.Tag {
	case intent.TagFallbackFareBetween:
		text := c.FareBetween(message)
		if j, ok := knowledge.QuoteJourney(k, g, message); ok {
			text = "🚇 " + j.Summary() + "\n\n" + text
		}
		return domain.Reply{Text: text, Options: slices.Clone(c.MenuOptions)}
	case intent.TagFallbackRoute:
		return domain.Reply{Text: c.Routes}
	case intent.TagFallbackFare:
		return domain.Reply{Text: c.Fares}
	default:
		return domain.Reply{Text: c.Schedule}
	}
}
