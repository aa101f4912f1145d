// Package signal turns SIGINT and SIGTERM into context cancellation for
// long-running taskreview commands.
//
// The first signal cancels the context so servers can drain. A second signal
// runs the force callback, if one is set, for operators who do not want to wait.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages (to avoid circular dependencies)
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler cancels its context on the first interrupt signal.
type Handler struct {
	ctx         context.Context //nolint:containedctx // intentional: handler manages context lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{}
	sigChan     chan os.Signal
	force       func(os.Signal)

	mu       sync.Mutex
	received []os.Signal
	stopOnce sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithForce runs fn when a second signal arrives while the first is being handled.
func WithForce(fn func(os.Signal)) Option {
	return func(h *Handler) { h.force = fn }
}

// NewHandler starts listening for SIGINT and SIGTERM.
//
// Usage:
//
//	h := signal.NewHandler(ctx)
//	defer h.Stop()
//	return server.Run(h.Context(), addr, timeouts)
func NewHandler(parent context.Context, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		// Buffered so signal.Notify never drops a signal while we are busy.
		sigChan: make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(h)
	}
	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()
	return h
}

// Context returns the context canceled by the first signal.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns a channel closed when the first signal arrives.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Signal returns the first signal received, or nil.
func (h *Handler) Signal() os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.received) == 0 {
		return nil
	}
	return h.received[0]
}

// Stop stops listening and cancels the context. It is safe to call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

// handle records sig. The first one cancels the context; later ones trigger force.
func (h *Handler) handle(sig os.Signal) {
	h.mu.Lock()
	h.received = append(h.received, sig)
	first := len(h.received) == 1
	h.mu.Unlock()

	if first {
		h.cancel()
		close(h.interrupted)
		return
	}
	if h.force != nil {
		h.force(sig)
	}
}

func (h *Handler) listen() {
	for {
		select {
		case <-h.done:
			return
		case sig := <-h.sigChan:
			h.handle(sig)
		}
	}
}
