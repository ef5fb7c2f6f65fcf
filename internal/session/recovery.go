package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default recovery parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Recovery restarts the capture side after the source dies mid-stream.
//
// The application wires [Recovery.NotifyFailure] to the session's OnError
// hook (for stall reports) and calls [Recovery.Watch] once; on a failure
// signal the restart closure is retried with exponential backoff until it
// succeeds or the retry budget is spent.
//
// All methods are safe for concurrent use.
type Recovery struct {
	restart     func() error
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onRecovered func()
	onGaveUp    func(err error)

	done     chan struct{}
	stopOnce sync.Once
	failed   chan struct{} // signalled when a capture failure is detected
}

// RecoveryConfig configures a [Recovery].
type RecoveryConfig struct {
	// MaxRetries is the number of restart attempts per failure before giving
	// up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial wait between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the backoff duration. Defaults to 30s
	// if zero.
	MaxBackoff time.Duration

	// OnRecovered is called after a successful restart. May be nil.
	OnRecovered func()

	// OnGaveUp is called with the last restart error once the retry budget is
	// spent. May be nil.
	OnGaveUp func(err error)
}

// NewRecovery creates a [Recovery] around the given restart closure. The
// closure must return the capture side to a listening state; for a Session
// that is StopListening followed by StartListening.
func NewRecovery(restart func() error, cfg RecoveryConfig) *Recovery {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Recovery{
		restart:     restart,
		maxRetries:  maxRetries,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		onRecovered: cfg.OnRecovered,
		onGaveUp:    cfg.OnGaveUp,
		done:        make(chan struct{}),
		failed:      make(chan struct{}, 1),
	}
}

// Watch starts the recovery loop in a background goroutine. It exits when ctx
// is cancelled or [Recovery.Stop] is called.
func (r *Recovery) Watch(ctx context.Context) {
	go r.watchLoop(ctx)
}

// NotifyFailure signals that the capture side has failed and should be
// restarted. Safe to call multiple times; only the first call per recovery
// cycle has effect.
func (r *Recovery) NotifyFailure() {
	select {
	case r.failed <- struct{}{}:
	default:
		// Already signalled; avoid blocking the hook.
	}
}

// Stop halts the recovery loop. Safe to call multiple times.
func (r *Recovery) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// watchLoop waits for failure notifications and attempts restarts.
func (r *Recovery) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.failed:
			r.attemptRestart(ctx)
		}
	}
}

// attemptRestart retries the restart closure with exponential backoff.
func (r *Recovery) attemptRestart(ctx context.Context) {
	currentBackoff := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("attempting capture restart",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		if err := r.restart(); err == nil {
			slog.Info("capture restart successful", "attempt", attempt)
			// A stale failure signal from before the restart would trigger a
			// needless cycle; drain it.
			select {
			case <-r.failed:
			default:
			}
			if r.onRecovered != nil {
				r.onRecovered()
			}
			return
		} else {
			lastErr = err
			slog.Warn("capture restart failed",
				"attempt", attempt,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("capture restart failed after max retries",
		"max_retries", r.maxRetries,
		"error", lastErr,
	)
	if r.onGaveUp != nil {
		r.onGaveUp(lastErr)
	}
}
