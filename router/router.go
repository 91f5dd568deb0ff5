// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

// ErrALPNCollision is returned by Spawn when two handlers were
// registered under the same ALPN.
var ErrALPNCollision = errors.New("ALPN already registered")

// ProtocolHandler serves the sessions of one ALPN.
type ProtocolHandler interface {
	// Accept serves one confirmed session. It runs on its own
	// goroutine and owns the session, including closing it.
	Accept(ctx context.Context, session *endpoint.Session) error

	// Shutdown releases the handler's resources. The router calls it
	// once, without waiting for Accept calls to return.
	Shutdown(ctx context.Context) error
}

// Builder collects handler registrations.
type Builder struct {
	endpoint   *endpoint.Endpoint
	handlers   map[string]ProtocolHandler
	order      []string
	collisions []string
	logger     *slog.Logger
	metrics    *Metrics
}

// NewBuilder starts a router for ep.
func NewBuilder(ep *endpoint.Endpoint) *Builder {
	return &Builder{
		endpoint: ep,
		handlers: make(map[string]ProtocolHandler),
		logger:   ep.Logger(),
	}
}

// Accept registers handler for alpn. Registering an ALPN twice is
// reported by Spawn.
func (b *Builder) Accept(alpn string, handler ProtocolHandler) *Builder {
	if handler == nil {
		panic("router: nil handler for ALPN " + alpn)
	}
	if _, exists := b.handlers[alpn]; exists {
		b.collisions = append(b.collisions, alpn)
		return b
	}
	b.handlers[alpn] = handler
	b.order = append(b.order, alpn)
	return b
}

// WithLogger overrides the endpoint's logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics records session metrics into metrics.
func (b *Builder) WithMetrics(metrics *Metrics) *Builder {
	b.metrics = metrics
	return b
}

// Spawn starts dispatching inbound sessions. The accept loop runs
// until Shutdown; ctx is passed to handlers and cancelled by Shutdown.
func (b *Builder) Spawn(ctx context.Context) (*Router, error) {
	if len(b.collisions) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrALPNCollision, b.collisions)
	}
	if b.metrics == nil {
		b.metrics = NewMetrics()
	}

	runCtx, cancel := context.WithCancel(ctx)
	router := &Router{
		endpoint: b.endpoint,
		handlers: b.handlers,
		alpns:    slices.Clone(b.order),
		logger:   b.logger.With("component", "router"),
		metrics:  b.metrics,
		ctx:      runCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go router.acceptLoop()
	router.logger.Info("router started", "alpns", router.alpns)
	return router, nil
}

// Router dispatches sessions until Shutdown.
type Router struct {
	endpoint *endpoint.Endpoint
	handlers map[string]ProtocolHandler
	alpns    []string
	logger   *slog.Logger
	metrics  *Metrics

	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// ALPNs lists the registered protocols in registration order.
func (r *Router) ALPNs() []string { return slices.Clone(r.alpns) }

// Endpoint returns the endpoint the router serves.
func (r *Router) Endpoint() *endpoint.Endpoint { return r.endpoint }

// Metrics returns the router's session metrics.
func (r *Router) Metrics() *Metrics { return r.metrics }

// Done is closed once the accept loop has exited.
func (r *Router) Done() <-chan struct{} { return r.done }

func (r *Router) acceptLoop() {
	defer close(r.done)
	for {
		session, err := r.endpoint.Accept(r.ctx)
		if err != nil {
			if r.ctx.Err() == nil && !errors.Is(err, endpoint.ErrClosed) {
				r.logger.Error("accepting session failed", "error", err)
			}
			return
		}
		r.dispatch(session)
	}
}

func (r *Router) dispatch(session *endpoint.Session) {
	alpn := session.ALPN()
	peer := session.RemoteNode().ShortString()

	handler, ok := r.handlers[alpn]
	if !ok {
		r.metrics.sessions.WithLabelValues(alpn, outcomeRejected).Inc()
		r.logger.Warn("rejecting session with unknown ALPN", "alpn", alpn, "peer", peer)
		if err := session.Reject(endpoint.CodeNoProtocol, "no handler for "+alpn); err != nil {
			r.logger.Debug("sending rejection failed", "peer", peer, "error", err)
		}
		return
	}

	if err := session.Confirm(); err != nil {
		r.metrics.sessions.WithLabelValues(alpn, outcomeFailed).Inc()
		r.logger.Debug("confirming session failed", "alpn", alpn, "peer", peer, "error", err)
		session.Close()
		return
	}
	r.metrics.sessions.WithLabelValues(alpn, outcomeDispatched).Inc()

	go func() {
		start := time.Now()
		r.metrics.inFlight.WithLabelValues(alpn).Inc()
		defer r.metrics.inFlight.WithLabelValues(alpn).Dec()

		if err := handler.Accept(r.ctx, session); err != nil && r.ctx.Err() == nil {
			r.logger.Warn("session ended with error", "alpn", alpn, "peer", peer, "error", err)
		}
		r.metrics.duration.WithLabelValues(alpn).Observe(time.Since(start).Seconds())
	}()
}

// Shutdown stops accepting sessions, shuts every handler down in
// registration order, and closes the endpoint. It is idempotent.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}

		var errs []error
		for _, alpn := range r.alpns {
			if err := r.handlers[alpn].Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s handler: %w", alpn, err))
			}
		}
		if err := r.endpoint.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing endpoint: %w", err))
		}
		r.shutdownErr = errors.Join(errs...)
		r.logger.Info("router shut down")
	})
	return r.shutdownErr
}
