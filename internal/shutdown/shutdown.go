// Package shutdown stops long-running explorer commands on SIGINT/SIGTERM and
// runs their cleanup hooks.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/OpenExplorer/internal/logger"
)

// DefaultTimeout bounds each cleanup hook.
const DefaultTimeout = 10 * time.Second

// Callback is a cleanup hook run during shutdown.
type Callback func(ctx context.Context) error

type hook struct {
	name string
	fn   Callback
}

// Handler manages graceful shutdown.
type Handler struct {
	mu    sync.Mutex
	hooks []hook
	errs  []error

	isShuttingDown atomic.Bool
	done           chan struct{}
	timeout        time.Duration

	// ctx is cancelled as soon as shutdown begins.
	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	log     *logger.Logger
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a handler derived from parent and starts listening for signals.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		log:     cfg.Logger.WithComponent("shutdown"),
	}
	signal.Notify(h.sigChan, cfg.Signals...)

	go h.listen()
	return h
}

// Register adds a cleanup hook. Hooks run in reverse registration order.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown is in progress.
func (h *Handler) IsShuttingDown() bool {
	return h.isShuttingDown.Load()
}

// Done is closed once every hook has finished or timed out.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Errors returns the hook failures of a completed shutdown.
func (h *Handler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *Handler) listen() {
	select {
	case sig := <-h.sigChan:
		h.log.Info("Received " + sig.String() + ", shutting down")
		h.Shutdown()
	case <-h.ctx.Done():
		// parent cancelled or Shutdown called directly
		h.Shutdown()
	}
}

// Shutdown cancels Context and runs the hooks. Only the first call does
// any work; later calls wait for it to finish.
func (h *Handler) Shutdown() {
	if !h.isShuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return
	}
	start := time.Now()

	signal.Stop(h.sigChan)
	h.cancel()

	h.mu.Lock()
	hooks := append([]hook(nil), h.hooks...)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := h.run(hooks[i]); err != nil {
			h.log.WithError(err).Warn("Shutdown hook failed: " + hooks[i].name)
			errs = append(errs, err)
		}
	}

	h.mu.Lock()
	h.errs = errs
	h.mu.Unlock()

	h.log.Debugf("Shutdown complete in %s", time.Since(start).Round(time.Millisecond))
	close(h.done)
}

func (h *Handler) run(hk hook) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- hk.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: hk.name}
	}
}

// Trigger simulates a received SIGTERM.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
		// Signal already pending
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
