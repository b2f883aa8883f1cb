package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
)

// ErrCircuitOpen is returned while the venue breaker refuses calls.
var ErrCircuitOpen = errors.New("venue circuit breaker open")

type RemoteConfig struct {
	Name      string
	Timeout   time.Duration
	RateLimit float64 // calls per second, 0 for unlimited
	Burst     int

	// breaker
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
}

// RemoteVenue guards an ExchangeClient: each call is rate limited, bounded
// by Timeout and passed through a circuit breaker. A call that times out is
// abandoned and reported as a failure.
type RemoteVenue struct {
	name    string
	client  broker.ExchangeClient
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func NewRemoteVenue(client broker.ExchangeClient, cfg RemoteConfig, log *slog.Logger, m *Metrics) *RemoteVenue {
	log = logging.OrDiscard(log).With("venue", cfg.Name)

	limit, burst := rate.Inf, cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	failureRatio := cfg.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			m.setBreakerState(name, to)
		},
	})

	return &RemoteVenue{
		name:    cfg.Name,
		client:  client,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		breaker: cb,
		log:     log,
	}
}

func (r *RemoteVenue) Name() string { return r.name }

// Submit never returns a nil Err on a failed call.
func (r *RemoteVenue) Submit(ctx context.Context, order broker.OrderRequest) broker.ExecutionResult {
	res, err := call(ctx, r, "submit", func(ctx context.Context) (broker.ExecutionResult, error) {
		return r.client.SubmitOrder(ctx, order)
	})
	if err != nil {
		r.log.Warn("submit failed", "order_id", order.ID, "symbol", order.Symbol, "err", err)
		return broker.Rejected(err)
	}
	if !res.Success && res.Err == nil {
		res.Err = fmt.Errorf("%s rejected order %s with status %s", r.name, order.ID, res.Status)
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	return res
}

func (r *RemoteVenue) Cancel(ctx context.Context, orderID string) broker.ExecutionResult {
	res, err := call(ctx, r, "cancel", func(ctx context.Context) (broker.ExecutionResult, error) {
		return r.client.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return broker.Rejected(err)
	}
	return res
}

func (r *RemoteVenue) Balance(ctx context.Context) (float64, error) {
	return call(ctx, r, "balance", r.client.GetBalance)
}

func (r *RemoteVenue) Positions(ctx context.Context) ([]broker.Position, error) {
	return call(ctx, r, "positions", r.client.GetPositions)
}

func (r *RemoteVenue) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func call[T any](ctx context.Context, r *RemoteVenue, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return zero, &broker.ExecutionFailure{Op: op, Err: fmt.Errorf("%w: rate limiter: %v", broker.ErrExecutionTimeout, err)}
	}

	out, err := r.breaker.Execute(func() (any, error) {
		return await(ctx, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s", ErrCircuitOpen, r.name)
		}
		return zero, &broker.ExecutionFailure{Op: op, Err: err}
	}
	v, _ := out.(T)
	return v, nil
}

// await runs fn on its own goroutine so a client that ignores ctx cannot
// hold the caller past the deadline.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		ch <- outcome{v: v, err: err}
	}()

	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", broker.ErrExecutionTimeout, ctx.Err())
	}
}
