package execution

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/safety"
)

type fakeClient struct {
	calls   atomic.Int32
	submit  func(ctx context.Context, req broker.OrderRequest) (broker.ExecutionResult, error)
	balance float64
}

func (c *fakeClient) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.ExecutionResult, error) {
	c.calls.Add(1)
	return c.submit(ctx, req)
}

func (c *fakeClient) CancelOrder(_ context.Context, orderID string) (broker.ExecutionResult, error) {
	return broker.ExecutionResult{Success: true, Status: broker.StatusCancelled}, nil
}

func (c *fakeClient) GetBalance(context.Context) (float64, error) { return c.balance, nil }

func (c *fakeClient) GetPositions(context.Context) ([]broker.Position, error) { return nil, nil }

func blockingClient(t *testing.T) *fakeClient {
	t.Helper()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return &fakeClient{
		balance: 1000,
		submit: func(context.Context, broker.OrderRequest) (broker.ExecutionResult, error) {
			<-release // ignores ctx on purpose
			return broker.Filled(broker.OrderFill{}), nil
		},
	}
}

func TestRemoteTimeoutBecomesRejection(t *testing.T) {
	t.Parallel()

	r := NewRemoteVenue(blockingClient(t), RemoteConfig{Name: "live", Timeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, res.Success)
	assert.Equal(t, broker.StatusRejected, res.Status)
	assert.True(t, errors.Is(res.Err, broker.ErrExecutionTimeout), "got %v", res.Err)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))

	var ef *broker.ExecutionFailure
	require.True(t, errors.As(res.Err, &ef))
	assert.Equal(t, "submit", ef.Op)
}

func TestRemoteCallerCancellation(t *testing.T) {
	t.Parallel()

	r := NewRemoteVenue(blockingClient(t), RemoteConfig{Name: "live"}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	res := r.Submit(ctx, market(t, "BTCUSDT", broker.Long, 1))
	assert.True(t, errors.Is(res.Err, context.Canceled), "got %v", res.Err)
}

func TestRemoteBreakerOpens(t *testing.T) {
	t.Parallel()

	boom := errors.New("exchange down")
	client := &fakeClient{submit: func(context.Context, broker.OrderRequest) (broker.ExecutionResult, error) {
		return broker.ExecutionResult{}, boom
	}}
	m := NewMetrics()
	r := NewRemoteVenue(client, RemoteConfig{
		Name:         "live",
		Timeout:      time.Second,
		FailureRatio: 0.5,
		MinRequests:  2,
		OpenTimeout:  time.Minute,
	}, nil, m)

	for i := 0; i < 2; i++ {
		res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
		assert.True(t, errors.Is(res.Err, boom))
	}

	res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
	assert.True(t, errors.Is(res.Err, ErrCircuitOpen), "got %v", res.Err)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestRemotePanicIsContained(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submit: func(context.Context, broker.OrderRequest) (broker.ExecutionResult, error) {
		panic("nil map write")
	}}
	r := NewRemoteVenue(client, RemoteConfig{Name: "live", Timeout: time.Second}, nil, nil)

	res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason(), "panic: nil map write")
}

func TestRemoteRateLimit(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submit: func(context.Context, broker.OrderRequest) (broker.ExecutionResult, error) {
		return broker.Filled(broker.OrderFill{}), nil
	}}
	r := NewRemoteVenue(client, RemoteConfig{
		Name:      "live",
		Timeout:   50 * time.Millisecond,
		RateLimit: 0.001,
		Burst:     1,
	}, nil, nil)

	assert.True(t, r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1)).Success)

	res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
	assert.True(t, errors.Is(res.Err, broker.ErrExecutionTimeout), "got %v", res.Err)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRemoteUnsuccessfulResultGetsError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submit: func(context.Context, broker.OrderRequest) (broker.ExecutionResult, error) {
		return broker.ExecutionResult{Status: broker.StatusExpired}, nil
	}}
	r := NewRemoteVenue(client, RemoteConfig{Name: "live"}, nil, nil)

	res := r.Submit(context.Background(), market(t, "BTCUSDT", broker.Long, 1))
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Reason(), "EXPIRED")
	assert.NotNil(t, res.Metadata)
}

func TestLiveEngineTimeoutLeavesStateClean(t *testing.T) {
	t.Parallel()

	client := blockingClient(t)
	monitor := safety.NewMonitor(safety.DefaultLimits(), 1000, safety.WithSignal(func(string) bool { return false }))
	e, err := New(Options{
		AccountID: acct,
		Mode:      ModeLive,
		Remote:    NewRemoteVenue(client, RemoteConfig{Name: "live", Timeout: 20 * time.Millisecond}, nil, nil),
		Monitor:   monitor,
	})
	require.NoError(t, err)

	o := market(t, "BTCUSDT", broker.Long, 1)
	o.StopLoss = broker.Float(99)
	res := e.SubmitOrder(context.Background(), o, 100)
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, broker.ErrExecutionTimeout))

	c := e.Counters()
	assert.Equal(t, 1, c.Submitted)
	assert.Equal(t, 1, c.Rejected)
	assert.Zero(t, c.Filled)
	assert.Zero(t, monitor.Status().OpenPositions)

	cancelled := e.CancelOrder(context.Background(), "ord_1")
	assert.True(t, cancelled.Success)
	assert.Equal(t, 1, e.Counters().Cancelled)
}

// echoClient fills every order at its mark and reports nothing beyond the
// fill, as a bare exchange adapter would.
func echoClient() *fakeClient {
	return &fakeClient{
		balance: 10000,
		submit: func(_ context.Context, req broker.OrderRequest) (broker.ExecutionResult, error) {
			price, _ := req.Metadata[MetaMarkPrice].(float64)
			return broker.Filled(broker.OrderFill{
				OrderID:  req.ID,
				Symbol:   req.Symbol,
				Side:     req.Side,
				Quantity: req.Quantity,
				Price:    price,
			}), nil
		},
	}
}

func TestLiveEngineMirrorsClosesWithoutVenueHints(t *testing.T) {
	t.Parallel()

	monitor := safety.NewMonitor(safety.DefaultLimits(), 10000,
		safety.WithSignal(func(string) bool { return false }))
	e, err := New(Options{
		AccountID: acct,
		Mode:      ModeLive,
		Remote:    NewRemoteVenue(echoClient(), RemoteConfig{Name: "live"}, nil, nil),
		Monitor:   monitor,
	})
	require.NoError(t, err)
	ctx := context.Background()

	open := func() broker.OrderRequest {
		o := market(t, "BTCUSDT", broker.Long, 1)
		o.StopLoss = broker.Float(99)
		return o
	}

	require.True(t, e.SubmitOrder(ctx, open(), 100).Success)
	assert.Equal(t, 1, monitor.Status().OpenPositions)

	sell := market(t, "BTCUSDT", broker.Sell, 1)
	assert.True(t, monitor.IsClosing(sell))
	require.True(t, e.SubmitOrder(ctx, sell, 101).Success)
	assert.Zero(t, monitor.Status().OpenPositions)
	assert.Zero(t, monitor.Status().Exposure)

	// the reopened long is tracked as a long, so another long is not a close
	require.True(t, e.SubmitOrder(ctx, open(), 100).Success)
	assert.False(t, monitor.IsClosing(open()))
	assert.True(t, monitor.IsClosing(sell))
}

func TestLiveEngineOpenCapsStillApply(t *testing.T) {
	t.Parallel()

	limits := safety.DefaultLimits()
	limits.MaxOpenTrades = 1
	monitor := safety.NewMonitor(limits, 10000, safety.WithSignal(func(string) bool { return false }))
	e, err := New(Options{
		AccountID: acct,
		Mode:      ModeLive,
		Remote:    NewRemoteVenue(echoClient(), RemoteConfig{Name: "live"}, nil, nil),
		Monitor:   monitor,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.True(t, e.SubmitOrder(ctx, market(t, "BTCUSDT", broker.Long, 1), 100).Success)
	require.True(t, e.SubmitOrder(ctx, market(t, "BTCUSDT", broker.Sell, 1), 100).Success)

	// the sell flattened BTC, so the single slot is free again
	res := e.SubmitOrder(ctx, market(t, "ETHUSDT", broker.Long, 1), 50)
	require.True(t, res.Success, res.Reason())

	res = e.SubmitOrder(ctx, market(t, "SOLUSDT", broker.Long, 1), 20)
	var v *safety.Violation
	require.True(t, errors.As(res.Err, &v), "got %v", res.Err)
	assert.Equal(t, safety.CodeMaxOpenTrades, v.Code)
}
