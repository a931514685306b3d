package payflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"sacco/internal/mpesa"
)

const (
	// One status check every 3 seconds, at most 20 checks: roughly a
	// 60-second budget before the attempt is declared timed out.
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 20
)

// Attempt is one tick of the polling loop. Attempts exist only in the
// loop's memory; nothing is persisted.
type Attempt struct {
	Number     int
	Timestamp  time.Time
	ResultCode string
}

// Poller repeatedly queries the provider for the outcome of an initiated
// charge until a terminal classification or the attempt budget runs out.
// Each tick awaits its own response, so no two status checks for the same
// handle are ever in flight at once.
type Poller struct {
	gateway     Gateway
	logger      *zap.SugaredLogger
	Interval    time.Duration
	MaxAttempts int
}

func NewPoller(gateway Gateway, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		gateway:     gateway,
		logger:      logger,
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// PollUntilTerminal blocks until the charge reaches a terminal outcome, the
// attempt budget is exhausted, or ctx is cancelled. On cancellation it
// returns ctx.Err() and guarantees onAttempt never fires again, even for a
// response that was already in flight.
//
// A "transaction not found" from the provider is terminal. Any other error
// on a single check is logged and treated as pending so one flaky response
// does not kill the whole attempt.
func (p *Poller) PollUntilTerminal(ctx context.Context, handle Handle, onAttempt func(Attempt)) (mpesa.Outcome, error) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return mpesa.Outcome{}, ctx.Err()
		case <-ticker.C:
		}

		res, err := p.gateway.STKQuery(ctx, handle.CheckoutRequestID)

		// A response that lands after cancellation is discarded; the
		// caller has moved on and must not see it.
		if ctx.Err() != nil {
			return mpesa.Outcome{}, ctx.Err()
		}

		if err != nil {
			if errors.Is(err, mpesa.ErrTransactionNotFound) {
				if onAttempt != nil {
					onAttempt(Attempt{Number: attempt, Timestamp: time.Now()})
				}
				return mpesa.NotFoundOutcome(), nil
			}
			p.logger.Errorw("payment status check failed",
				"checkout_request_id", handle.CheckoutRequestID,
				"attempt", attempt,
				"error", err,
			)
			if attempt >= p.MaxAttempts {
				return mpesa.TimeoutOutcome(), nil
			}
			continue
		}

		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt, Timestamp: time.Now(), ResultCode: res.ResultCode})
		}

		outcome := mpesa.Classify(res.ResultCode)
		if outcome.Status.Terminal() {
			return outcome, nil
		}
		if attempt >= p.MaxAttempts {
			return mpesa.TimeoutOutcome(), nil
		}
	}
}
