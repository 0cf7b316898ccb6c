package payment

import (
	"context"
	"sync"
	"time"

	"paywatch/internal/logger"
	"paywatch/internal/metrics"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const DefaultPollInterval = 5 * time.Second

// Result is one poll observation: either a snapshot or an error, never both.
// An error means the fetch failed; a payment that failed arrives as a
// snapshot with StatusFailed.
type Result struct {
	Snapshot *StatusSnapshot
	Err      error
}

func okResult(s *StatusSnapshot) Result {
	return Result{Snapshot: s}
}

func errResult(err error) Result {
	return Result{Err: err}
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Observer receives poll results one at a time, in fetch order.
type Observer func(Result)

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

type pollConfig struct {
	interval  time.Duration
	newTicker func(time.Duration) ticker
}

type PollOption func(*pollConfig)

// WithInterval sets the time between fetches. Non-positive values keep the default.
func WithInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

func withTicker(f func(time.Duration) ticker) PollOption {
	return func(c *pollConfig) {
		c.newTicker = f
	}
}

type fetchFunc func(ctx context.Context, paymentID string) (*StatusSnapshot, error)

// PollHandle controls one poll loop. Handles share nothing with each other.
type PollHandle struct {
	id        string
	paymentID string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (h *PollHandle) ID() string {
	return h.id
}

func (h *PollHandle) PaymentID() string {
	return h.paymentID
}

// Stop ends polling. It is safe to call any number of times, including after
// the loop ended on its own. A fetch already in flight is not aborted, but
// its result is not delivered.
func (h *PollHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the loop has exited and no more callbacks will run.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

func (h *PollHandle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// startPolling launches the loop. The first fetch happens one interval after
// start, then every interval. Fetches never overlap: ticks that fire while a
// fetch is running are dropped. The loop ends on a terminal status, Stop, or
// ctx cancellation; there is no built-in limit on the number of fetches.
func startPolling(ctx context.Context, paymentID string, fetch fetchFunc, observer Observer, opts ...PollOption) *PollHandle {
	cfg := pollConfig{
		interval:  DefaultPollInterval,
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &PollHandle{
		id:        ulid.Make().String(),
		paymentID: paymentID,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	t := cfg.newTicker(cfg.interval)
	metrics.PollerStarted()
	go h.run(ctx, t, fetch, observer, cfg.interval)
	return h
}

func (h *PollHandle) run(ctx context.Context, t ticker, fetch fetchFunc, observer Observer, interval time.Duration) {
	defer close(h.done)
	defer metrics.PollerStopped()
	defer t.Stop()

	ctx = logger.WithPaymentID(ctx, h.paymentID)
	log := logger.FromCtx(ctx).With(zap.String("poll_id", h.id))
	log.Debug("Polling started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			log.Debug("Polling cancelled by context", zap.Error(ctx.Err()))
			return
		case <-h.stop:
			log.Debug("Polling stopped")
			return
		case <-t.C():
		}
		if h.stopped() {
			log.Debug("Polling stopped")
			return
		}

		timer := metrics.StartTimer()
		snap, err := fetch(ctx, h.paymentID)
		timer.ObserveFetch()
		metrics.PollFetched(err)

		if h.stopped() || ctx.Err() != nil {
			log.Debug("Discarding result fetched after stop")
			return
		}

		// drop ticks that fired while the fetch was running
		select {
		case <-t.C():
			metrics.PollTickSkipped()
		default:
		}

		if err != nil {
			log.Warn("Status fetch failed, will retry", zap.Error(err))
			observer(errResult(err))
			continue
		}

		observer(okResult(snap))

		if snap.Status.IsTerminal() {
			metrics.TerminalStatus(snap.Status.String())
			log.Info("Payment reached terminal status", zap.String("status", snap.Status.String()))
			return
		}
	}
}
