package payflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sacco/internal/mpesa"
)

// Initiator starts a mobile-money charge. It makes exactly one provider
// call per Initiate; retrying is a member decision taken in the flow, never
// an automatic one.
type Initiator struct {
	gateway Gateway
	logger  *zap.SugaredLogger
}

func NewInitiator(gateway Gateway, logger *zap.SugaredLogger) *Initiator {
	return &Initiator{gateway: gateway, logger: logger}
}

// Initiate validates the request, normalizes the phone number, and pushes
// the payment prompt. Any failure comes back as *InitiationError with a
// message safe to surface inline on the input step.
func (i *Initiator) Initiate(ctx context.Context, req Request) (Handle, error) {
	if err := req.Validate(); err != nil {
		return Handle{}, &InitiationError{Message: err.Error()}
	}

	phone := mpesa.FormatPhoneNumber(req.Phone)

	res, err := i.gateway.STKPush(ctx, mpesa.StkPushRequest{
		Phone:       phone,
		Amount:      req.Amount.IntPart(),
		AccountRef:  "SACCO",
		Description: fmt.Sprintf("%s Payment", req.Category),
	})
	if err != nil {
		i.logger.Errorw("stk push failed", "category", req.Category, "error", err)
		return Handle{}, &InitiationError{Message: "Failed to initiate payment. Please try again."}
	}
	if res.CheckoutRequestID == "" {
		return Handle{}, &InitiationError{Message: "Failed to initiate payment. Please try again."}
	}

	return Handle{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
	}, nil
}
