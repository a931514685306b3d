package payflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sacco/internal/mpesa"
)

// Step is the position in the three-step payment dialog.
type Step int

const (
	StepInput Step = iota
	StepProcessing
	StepResult
)

// RefreshHooks are invoked after a completed payment so the owning domain
// can recompute derived state (registration-paid flag, share totals, the
// welfare ledger). They are injected at construction; the flow never
// reaches into shared application state on its own.
type RefreshHooks struct {
	Registration func()
	Shares       func()
	Welfare      func()
}

func (h RefreshHooks) For(c Category) func() {
	switch c {
	case CategoryRegistration:
		return h.Registration
	case CategoryShares:
		return h.Shares
	case CategoryWelfare:
		return h.Welfare
	}
	return nil
}

// State is a read-only snapshot of a flow.
type State struct {
	Step       Step
	Category   Category
	Handle     *Handle
	Outcome    *mpesa.Outcome
	InputError string
}

// Flow drives one payment dialog: collect input, process, show the result.
// Transitions are linear; the only way back is an explicit TryAgain, which
// discards the current handle and outcome. At most one polling loop is
// active per flow at any time.
type Flow struct {
	initiator *Initiator
	poller    *Poller
	logger    *zap.SugaredLogger
	refresh   RefreshHooks

	// OnTerminal, when set, is told about every terminal outcome before
	// the category refresh runs. The server uses it to persist the
	// transaction's final state.
	OnTerminal func(Handle, mpesa.Outcome)

	mu         sync.Mutex
	step       Step
	category   Category
	handle     *Handle
	outcome    *mpesa.Outcome
	inputErr   string
	submitting bool
	cancel     context.CancelFunc
	gen        int
}

func NewFlow(initiator *Initiator, poller *Poller, logger *zap.SugaredLogger, refresh RefreshHooks) *Flow {
	return &Flow{
		initiator: initiator,
		poller:    poller,
		logger:    logger,
		refresh:   refresh,
	}
}

// Submit runs the input step: validate, initiate, and on success move to
// processing and start the poller. On failure the flow stays on the input
// step with the error recorded inline; nothing else is lost.
func (f *Flow) Submit(ctx context.Context, req Request) error {
	f.mu.Lock()
	if f.step != StepInput {
		f.mu.Unlock()
		return fmt.Errorf("a payment is already in progress")
	}
	if f.submitting {
		f.mu.Unlock()
		return fmt.Errorf("a payment is already being submitted")
	}
	f.submitting = true
	f.inputErr = ""
	f.mu.Unlock()

	handle, err := f.initiator.Initiate(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false

	if err != nil {
		f.inputErr = err.Error()
		return err
	}

	// The cancellation invariant: any previous poll must be stopped
	// before a new one starts.
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	f.category = req.Category
	f.handle = &handle
	f.outcome = nil
	f.step = StepProcessing
	f.gen++

	pollCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.poll(pollCtx, f.gen, handle)

	return nil
}

func (f *Flow) poll(ctx context.Context, gen int, handle Handle) {
	onAttempt := func(a Attempt) {
		f.logger.Debugw("payment status check",
			"checkout_request_id", handle.CheckoutRequestID,
			"attempt", a.Number,
			"result_code", a.ResultCode,
		)
	}

	outcome, err := f.poller.PollUntilTerminal(ctx, handle, onAttempt)
	if err != nil {
		// Cancelled: the dialog was closed or a new attempt started.
		return
	}

	f.mu.Lock()
	if gen != f.gen {
		// A stale terminal outcome from an abandoned attempt must not
		// mutate the dialog under a newer one.
		f.mu.Unlock()
		return
	}
	f.outcome = &outcome
	f.step = StepResult
	f.cancel = nil
	category := f.category
	f.mu.Unlock()

	if f.OnTerminal != nil {
		f.OnTerminal(handle, outcome)
	}
	if outcome.Status == mpesa.StatusCompleted {
		if hook := f.refresh.For(category); hook != nil {
			hook()
		}
	}
}

// TryAgain resets a non-completed result back to the input step, discarding
// the handle and outcome. It is only available when the outcome allows a
// retry.
func (f *Flow) TryAgain() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepResult {
		return fmt.Errorf("nothing to retry")
	}
	if f.outcome == nil || !f.outcome.RetryAllowed {
		return fmt.Errorf("this payment cannot be retried")
	}

	f.reset()
	return nil
}

// Close cancels any in-flight poll and clears the dialog. Safe to call in
// any step.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

// reset must be called with the lock held.
func (f *Flow) reset() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	f.step = StepInput
	f.handle = nil
	f.outcome = nil
	f.inputErr = ""
}

// Snapshot returns the flow's current state for rendering.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		Step:       f.step,
		Category:   f.category,
		InputError: f.inputErr,
	}
	if f.handle != nil {
		h := *f.handle
		s.Handle = &h
	}
	if f.outcome != nil {
		o := *f.outcome
		s.Outcome = &o
	}
	return s
}
