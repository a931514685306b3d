package payflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sacco/internal/mpesa"
)

type queryResult struct {
	res mpesa.StkQueryResponse
	err error
}

// fakeGateway scripts provider responses. Query results are consumed in
// order; the last one repeats once the script runs out.
type fakeGateway struct {
	mu sync.Mutex

	pushRes  mpesa.StkPushResponse
	pushErr  error
	lastPush mpesa.StkPushRequest

	queries    []queryResult
	queryCalls int
	blockQuery chan struct{}
}

func (g *fakeGateway) STKPush(ctx context.Context, req mpesa.StkPushRequest) (mpesa.StkPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastPush = req
	return g.pushRes, g.pushErr
}

func (g *fakeGateway) STKQuery(ctx context.Context, checkoutRequestID string) (mpesa.StkQueryResponse, error) {
	if g.blockQuery != nil {
		<-g.blockQuery
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCalls++
	i := g.queryCalls - 1
	if i >= len(g.queries) {
		i = len(g.queries) - 1
	}
	return g.queries[i].res, g.queries[i].err
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queryCalls
}

func (g *fakeGateway) push() mpesa.StkPushRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPush
}

func pending() queryResult {
	return queryResult{res: mpesa.StkQueryResponse{ResultCode: "None"}}
}

func code(c string) queryResult {
	return queryResult{res: mpesa.StkQueryResponse{ResultCode: c}}
}

func newTestPoller(g Gateway) *Poller {
	p := NewPoller(g, zap.NewNop().Sugar())
	p.Interval = time.Millisecond
	return p
}

func TestPollerStopsOnTerminalResult(t *testing.T) {
	gw := &fakeGateway{queries: []queryResult{pending(), code(mpesa.CodeSuccess)}}
	p := newTestPoller(gw)

	out, err := p.PollUntilTerminal(context.Background(), Handle{CheckoutRequestID: "CHK1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mpesa.StatusCompleted, out.Status)
	assert.Equal(t, 2, gw.calls(), "must stop the instant a terminal code is observed")
}

func TestPollerTimesOutAfterMaxAttempts(t *testing.T) {
	gw := &fakeGateway{queries: []queryResult{pending()}}
	p := newTestPoller(gw)

	var attempts []int
	out, err := p.PollUntilTerminal(context.Background(), Handle{CheckoutRequestID: "CHK1"}, func(a Attempt) {
		attempts = append(attempts, a.Number)
	})
	require.NoError(t, err)
	assert.Equal(t, mpesa.StatusTimeout, out.Status)
	assert.True(t, out.RetryAllowed)
	assert.Equal(t, DefaultMaxAttempts, gw.calls(), "never more than 20 status checks")
	assert.Len(t, attempts, DefaultMaxAttempts)
	assert.Equal(t, 1, attempts[0])
	assert.Equal(t, DefaultMaxAttempts, attempts[len(attempts)-1])
}

func TestPollerNotFoundIsTerminal(t *testing.T) {
	gw := &fakeGateway{queries: []queryResult{
		pending(),
		{err: mpesa.ErrTransactionNotFound},
	}}
	p := newTestPoller(gw)

	out, err := p.PollUntilTerminal(context.Background(), Handle{CheckoutRequestID: "CHK1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mpesa.StatusNotFound, out.Status)
	assert.Equal(t, "Transaction not found or was cancelled. Please try again.", out.Message)
	assert.Equal(t, 2, gw.calls())
}

func TestPollerContinuesThroughTransientErrors(t *testing.T) {
	gw := &fakeGateway{queries: []queryResult{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		code(mpesa.CodeSuccess),
	}}
	p := newTestPoller(gw)

	out, err := p.PollUntilTerminal(context.Background(), Handle{CheckoutRequestID: "CHK1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mpesa.StatusCompleted, out.Status)
	assert.Equal(t, 3, gw.calls())
}

func TestPollerWrongPinOutcome(t *testing.T) {
	gw := &fakeGateway{queries: []queryResult{pending(), pending(), code(mpesa.CodeWrongPIN)}}
	p := newTestPoller(gw)

	out, err := p.PollUntilTerminal(context.Background(), Handle{CheckoutRequestID: "CHK1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mpesa.StatusFailed, out.Status)
	assert.Equal(t, "Wrong M-Pesa PIN entered. Please try again with the correct PIN.", out.Message)
	assert.True(t, out.RetryAllowed)
	assert.Equal(t, 3, gw.calls())
}

func TestPollerCancellationSuppressesCallbacks(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		queries:    []queryResult{code(mpesa.CodeSuccess)},
		blockQuery: release,
	}
	p := newTestPoller(gw)

	ctx, cancel := context.WithCancel(context.Background())

	var fired int
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := p.PollUntilTerminal(ctx, Handle{CheckoutRequestID: "CHK1"}, func(Attempt) {
			fired++
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	// Let the first request go out, cancel while it is in flight, then let
	// the response land. The late response must be discarded.
	time.Sleep(5 * time.Millisecond)
	cancel()
	close(release)
	<-done

	assert.Equal(t, 0, fired, "no callback may fire after cancellation")
}
