package payflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sacco/internal/mpesa"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newTestFlow(gw Gateway, refresh RefreshHooks) *Flow {
	logger := zap.NewNop().Sugar()
	return NewFlow(NewInitiator(gw, logger), newTestPoller(gw), logger, refresh)
}

func TestFlowWelfareCompletes(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{
			CheckoutRequestID: "CHK1",
			MerchantRequestID: "MER1",
			ResponseCode:      "0",
		},
		queries: []queryResult{pending(), code(mpesa.CodeSuccess)},
	}

	var welfareRefreshed atomic.Int32
	flow := newTestFlow(gw, RefreshHooks{
		Welfare: func() { welfareRefreshed.Add(1) },
	})

	err := flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	})
	require.NoError(t, err)

	assert.Equal(t, "254712345678", gw.push().Phone, "phone must be normalized before the push")
	assert.Equal(t, int64(300), gw.push().Amount)

	s := flow.Snapshot()
	assert.Equal(t, StepProcessing, s.Step)
	require.NotNil(t, s.Handle)
	assert.Equal(t, "CHK1", s.Handle.CheckoutRequestID)

	waitFor(t, func() bool { return flow.Snapshot().Step == StepResult })

	s = flow.Snapshot()
	require.NotNil(t, s.Outcome)
	assert.Equal(t, mpesa.StatusCompleted, s.Outcome.Status)
	assert.Equal(t, "Payment completed successfully", s.Outcome.Message)
	assert.Equal(t, int32(1), welfareRefreshed.Load(), "completed payment must refresh the welfare ledger")
	assert.Equal(t, 2, gw.calls())
}

func TestFlowInitiationFailureStaysOnInput(t *testing.T) {
	gw := &fakeGateway{pushErr: errors.New("provider down")}
	flow := newTestFlow(gw, RefreshHooks{})

	err := flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   RegistrationFee,
		Category: CategoryRegistration,
	})

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)

	s := flow.Snapshot()
	assert.Equal(t, StepInput, s.Step)
	assert.Nil(t, s.Handle)
	assert.NotEmpty(t, s.InputError)
}

func TestFlowRejectsInvalidPhone(t *testing.T) {
	gw := &fakeGateway{}
	flow := newTestFlow(gw, RefreshHooks{})

	err := flow.Submit(context.Background(), Request{
		Phone:    "0812345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	})

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, StepInput, flow.Snapshot().Step)
}

func TestFlowTimesOutWhilePending(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{CheckoutRequestID: "CHK1", ResponseCode: "0"},
		queries: []queryResult{pending()},
	}
	flow := newTestFlow(gw, RefreshHooks{})

	require.NoError(t, flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	}))

	waitFor(t, func() bool { return flow.Snapshot().Step == StepResult })

	s := flow.Snapshot()
	require.NotNil(t, s.Outcome)
	assert.Equal(t, mpesa.StatusTimeout, s.Outcome.Status)
	assert.True(t, s.Outcome.RetryAllowed)
	assert.Equal(t, DefaultMaxAttempts, gw.calls())
}

func TestFlowTryAgainResetsToInput(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{CheckoutRequestID: "CHK1", ResponseCode: "0"},
		queries: []queryResult{pending(), pending(), code(mpesa.CodeWrongPIN)},
	}
	flow := newTestFlow(gw, RefreshHooks{})

	require.NoError(t, flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	}))

	waitFor(t, func() bool { return flow.Snapshot().Step == StepResult })

	s := flow.Snapshot()
	require.NotNil(t, s.Outcome)
	assert.Equal(t, "Wrong M-Pesa PIN entered. Please try again with the correct PIN.", s.Outcome.Message)
	assert.True(t, s.Outcome.RetryAllowed)

	require.NoError(t, flow.TryAgain())

	s = flow.Snapshot()
	assert.Equal(t, StepInput, s.Step)
	assert.Nil(t, s.Handle, "handle must be discarded on retry")
	assert.Nil(t, s.Outcome)
}

func TestFlowTryAgainGatedByRetryAllowed(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{CheckoutRequestID: "CHK1", ResponseCode: "0"},
		queries: []queryResult{code(mpesa.CodeDuplicateRequest)},
	}
	flow := newTestFlow(gw, RefreshHooks{})

	require.NoError(t, flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	}))

	waitFor(t, func() bool { return flow.Snapshot().Step == StepResult })

	assert.Error(t, flow.TryAgain())
	assert.Equal(t, StepResult, flow.Snapshot().Step)
}

func TestFlowRejectsSubmitWhileProcessing(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{CheckoutRequestID: "CHK1", ResponseCode: "0"},
		queries: []queryResult{pending()},
	}
	flow := newTestFlow(gw, RefreshHooks{})
	defer flow.Close()

	req := Request{Phone: "0712345678", Amount: WelfareAmount, Category: CategoryWelfare}
	require.NoError(t, flow.Submit(context.Background(), req))
	assert.Error(t, flow.Submit(context.Background(), req))
}

func TestFlowCloseDiscardsLateOutcome(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		pushRes:    mpesa.StkPushResponse{CheckoutRequestID: "CHK1", ResponseCode: "0"},
		queries:    []queryResult{code(mpesa.CodeSuccess)},
		blockQuery: release,
	}

	var refreshed atomic.Int32
	flow := newTestFlow(gw, RefreshHooks{Welfare: func() { refreshed.Add(1) }})

	require.NoError(t, flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	}))

	// Close the dialog while the first status check is still in flight,
	// then let the (successful) response land.
	time.Sleep(5 * time.Millisecond)
	flow.Close()
	close(release)
	time.Sleep(20 * time.Millisecond)

	s := flow.Snapshot()
	assert.Equal(t, StepInput, s.Step, "stale outcome must not mutate a closed dialog")
	assert.Nil(t, s.Outcome)
	assert.Equal(t, int32(0), refreshed.Load())
}

func TestFlowNotifiesTerminalObserver(t *testing.T) {
	gw := &fakeGateway{
		pushRes: mpesa.StkPushResponse{CheckoutRequestID: "CHK9", ResponseCode: "0"},
		queries: []queryResult{code(mpesa.CodeUserCancelled)},
	}
	flow := newTestFlow(gw, RefreshHooks{})

	type terminal struct {
		handle  Handle
		outcome mpesa.Outcome
	}
	got := make(chan terminal, 1)
	flow.OnTerminal = func(h Handle, o mpesa.Outcome) {
		got <- terminal{h, o}
	}

	require.NoError(t, flow.Submit(context.Background(), Request{
		Phone:    "0712345678",
		Amount:   WelfareAmount,
		Category: CategoryWelfare,
	}))

	select {
	case tm := <-got:
		assert.Equal(t, "CHK9", tm.handle.CheckoutRequestID)
		assert.Equal(t, mpesa.StatusCancelled, tm.outcome.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal observer never fired")
	}
}

func TestRequestAmountPolicy(t *testing.T) {
	assert.Error(t, Request{Phone: "0712345678", Amount: WelfareAmount.Add(ShareUnitValue), Category: CategoryWelfare}.Validate())
	assert.Error(t, Request{Phone: "0712345678", Amount: RegistrationFee.Sub(ShareUnitValue), Category: CategoryRegistration}.Validate())
	assert.Error(t, Request{Phone: "0712345678", Amount: AmountForShares(MaxShares + 1), Category: CategoryShares}.Validate())
	assert.NoError(t, Request{Phone: "0712345678", Amount: AmountForShares(5), Category: CategoryShares}.Validate())
	assert.Error(t, Request{Phone: "0712345678", Amount: AmountForShares(5), Category: Category("AIRTIME")}.Validate())
}
