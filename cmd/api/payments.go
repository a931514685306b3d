package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sacco/internal/mpesa"
	"sacco/internal/payflow"
	"sacco/internal/store"

	"github.com/shopspring/decimal"
)

// settleTimeout bounds the database work done when a payment reaches a
// terminal state outside any request context.
const settleTimeout = 10 * time.Second

type InitiatePaymentPayload struct {
	Category string `json:"category" validate:"required,oneof=REGISTRATION SHARES WELFARE"`
	Phone    string `json:"phone" validate:"required,saccophone"`
	Shares   int    `json:"shares,omitempty" validate:"omitempty,min=1,max=50"`
}

type InitiatePaymentResponse struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	Amount            string `json:"amount"`
	Message           string `json:"message"`
}

// initiatePaymentHandler godoc
//
//	@Summary		Initiate an M-Pesa payment
//	@Description	Sends an STK push to the member's phone for the given category. The amount is fixed server-side: KSH 1000 for registration, KSH 300 for welfare, shares x unit value for shares. The server keeps polling the provider in the background; poll /payments/status for the outcome.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		InitiatePaymentPayload	true	"Payment details"
//	@Success		202		{object}	InitiatePaymentResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		409		{object}	ErrorBadRequestResponse	"A payment is already in progress"
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload InitiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.launchPayment(w, r, user, payflow.Category(payload.Category), payload.Phone, payload.Shares)
}

// launchPayment is the shared initiation path behind the generic endpoint
// and the per-category ones. The caller has already validated the payload.
func (app *application) launchPayment(w http.ResponseWriter, r *http.Request, user *store.User, category payflow.Category, phone string, shares int) {
	amount, err := app.amountFor(r, user, category, shares)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	pending, err := app.store.Transactions.HasPendingForUser(r.Context(), user.ID, string(category))
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if pending {
		app.conflictResponse(w, r, errors.New("a payment for this category is already in progress"))
		return
	}

	handle, err := app.startPayment(r.Context(), user, payflow.Request{
		Phone:    phone,
		Amount:   amount,
		Category: category,
	})
	if err != nil {
		var initErr *payflow.InitiationError
		if errors.As(err, &initErr) {
			app.badRequestResponse(w, r, initErr)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	response := InitiatePaymentResponse{
		CheckoutRequestID: handle.CheckoutRequestID,
		MerchantRequestID: handle.MerchantRequestID,
		Amount:            amount.String(),
		Message:           "Payment request sent. Enter your M-Pesa PIN on your phone.",
	}

	if err := app.jsonResponse(w, http.StatusAccepted, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

// amountFor resolves the charge for a category and rejects payments the
// member's current state makes pointless.
func (app *application) amountFor(r *http.Request, user *store.User, category payflow.Category, shares int) (amount decimal.Decimal, err error) {
	switch category {
	case payflow.CategoryRegistration:
		if user.RegistrationPaid {
			return amount, errors.New("registration fee has already been paid")
		}
		return payflow.RegistrationFee, nil
	case payflow.CategoryShares:
		if !user.RegistrationPaid {
			return amount, errors.New("pay the registration fee before buying shares")
		}
		if shares < payflow.MinShares {
			return amount, fmt.Errorf("share purchases need a share count between %d and %d", payflow.MinShares, payflow.MaxShares)
		}
		return payflow.AmountForShares(shares), nil
	case payflow.CategoryWelfare:
		if !user.RegistrationPaid {
			return amount, errors.New("pay the registration fee before contributing to welfare")
		}
		contributed, err := app.store.Welfare.HasContributedThisMonth(r.Context(), user.ID)
		if err != nil {
			return amount, err
		}
		if contributed {
			return amount, errors.New("this month's welfare contribution has already been made")
		}
		return payflow.WelfareAmount, nil
	}
	return amount, fmt.Errorf("unknown payment category %q", category)
}

// startPayment runs one payment dialog server-side: initiate the charge,
// record the pending transaction, and leave a flow polling in the
// background. Settlement and member credits happen in OnTerminal, gated by
// the transaction's single PENDING->terminal move.
func (app *application) startPayment(ctx context.Context, user *store.User, req payflow.Request) (payflow.Handle, error) {
	flow := payflow.NewFlow(app.initiator, app.poller, app.logger, app.refreshHooksFor(user))
	flow.OnTerminal = func(h payflow.Handle, o mpesa.Outcome) {
		app.settlePayment(h.CheckoutRequestID, o, "")
	}

	if err := flow.Submit(ctx, req); err != nil {
		return payflow.Handle{}, err
	}

	state := flow.Snapshot()
	if state.Handle == nil {
		flow.Close()
		return payflow.Handle{}, errors.New("payment flow lost its handle")
	}
	handle := *state.Handle

	tx := &store.Transaction{
		UserID:            user.ID,
		Category:          string(req.Category),
		Amount:            req.Amount,
		Phone:             mpesa.FormatPhoneNumber(req.Phone),
		CheckoutRequestID: handle.CheckoutRequestID,
		MerchantRequestID: handle.MerchantRequestID,
	}
	if err := app.store.Transactions.Create(ctx, tx); err != nil {
		// Without a row to settle against, the flow must not keep
		// polling a charge we cannot account for.
		flow.Close()
		return payflow.Handle{}, err
	}

	// A fast terminal answer can land before the row exists, leaving its
	// MarkTerminal with nothing to flip. Settling again is harmless when
	// the first attempt already took the row out of PENDING.
	if state := flow.Snapshot(); state.Outcome != nil {
		app.settlePayment(handle.CheckoutRequestID, *state.Outcome, "")
	}

	return handle, nil
}

// refreshHooksFor recomputes derived member state after a completed
// payment and logs the new figures. The durable writes happen in
// settlement; these hooks only refresh what a dashboard would show.
func (app *application) refreshHooksFor(user *store.User) payflow.RefreshHooks {
	return payflow.RefreshHooks{
		Registration: func() {
			ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
			defer cancel()

			refreshed, err := app.store.Users.GetByID(ctx, user.ID)
			if err != nil {
				app.logger.Errorw("refresh registration state", "user_id", user.ID, "error", err)
				return
			}
			app.logger.Infow("registration state refreshed",
				"user_id", user.ID, "registration_paid", refreshed.RegistrationPaid)
		},
		Shares: func() {
			ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
			defer cancel()

			summary, err := app.store.Shares.Summary(ctx, user.ID)
			if err != nil {
				app.logger.Errorw("refresh share summary", "user_id", user.ID, "error", err)
				return
			}
			app.logger.Infow("share summary refreshed",
				"user_id", user.ID, "total_shares", summary.TotalShares, "total_value", summary.TotalValue)
		},
		Welfare: func() {
			ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
			defer cancel()

			total, err := app.store.Welfare.FundTotal(ctx)
			if err != nil {
				app.logger.Errorw("refresh welfare fund total", "error", err)
				return
			}
			app.logger.Infow("welfare fund refreshed", "fund_total", total)
		},
	}
}

// settlePayment moves the transaction to its terminal status and, when the
// payment completed, applies the member credit. The PENDING guard in
// MarkTerminal means the credit runs at most once even when the background
// poller, the status endpoint and the provider callback all report the same
// outcome.
func (app *application) settlePayment(checkoutRequestID string, outcome mpesa.Outcome, receipt string) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	flipped, err := app.store.Transactions.MarkTerminal(
		ctx, checkoutRequestID, txStatusFor(outcome.Status), outcome.ResultCode, receipt,
	)
	if err != nil {
		app.logger.Errorw("settle payment",
			"checkout_request_id", checkoutRequestID, "status", outcome.Status, "error", err)
		return
	}
	if !flipped || outcome.Status != mpesa.StatusCompleted {
		return
	}

	tx, err := app.store.Transactions.GetByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		app.logger.Errorw("load settled transaction",
			"checkout_request_id", checkoutRequestID, "error", err)
		return
	}

	if err := app.applyPaymentCredit(ctx, tx, receipt); err != nil {
		app.logger.Errorw("apply payment credit",
			"checkout_request_id", checkoutRequestID, "category", tx.Category, "error", err)
		return
	}

	app.logger.Infow("payment settled",
		"checkout_request_id", checkoutRequestID,
		"category", tx.Category,
		"amount", tx.Amount,
		"user_id", tx.UserID,
	)
}

func (app *application) applyPaymentCredit(ctx context.Context, tx *store.Transaction, receipt string) error {
	switch payflow.Category(tx.Category) {
	case payflow.CategoryRegistration:
		return app.store.Users.SetRegistrationPaid(ctx, tx.UserID)
	case payflow.CategoryShares:
		count := int(tx.Amount.Div(payflow.ShareUnitValue).IntPart())
		return app.store.Shares.Credit(ctx, tx.UserID, count, payflow.ShareUnitValue, tx.CheckoutRequestID)
	case payflow.CategoryWelfare:
		c := &store.WelfareContribution{
			UserID:        tx.UserID,
			Amount:        tx.Amount,
			PaymentMethod: "MPESA",
			Reference:     tx.CheckoutRequestID,
		}
		if receipt != "" {
			c.Receipt.String, c.Receipt.Valid = receipt, true
		}
		return app.store.Welfare.Record(ctx, c)
	}
	return fmt.Errorf("unknown payment category %q", tx.Category)
}

func txStatusFor(s mpesa.Status) string {
	switch s {
	case mpesa.StatusCompleted:
		return store.TxCompleted
	case mpesa.StatusCancelled:
		return store.TxCancelled
	case mpesa.StatusTimeout:
		return store.TxTimeout
	case mpesa.StatusNotFound:
		return store.TxNotFound
	default:
		return store.TxFailed
	}
}

type PaymentStatusPayload struct {
	CheckoutRequestID string `json:"checkout_request_id" validate:"required"`
}

type PaymentStatusResponse struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Category          string `json:"category"`
	Amount            string `json:"amount"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	RetryAllowed      bool   `json:"retry_allowed"`
}

// paymentStatusHandler godoc
//
//	@Summary		Check a payment's status
//	@Description	Returns the stored outcome for a settled payment. For a pending one it makes a single provider round-trip first, so clients polling this endpoint see the outcome even if the background poller has not caught it yet.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PaymentStatusPayload	true	"Checkout request id"
//	@Success		200		{object}	PaymentStatusResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments/status [post]
func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload PaymentStatusPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()

	tx, err := app.store.Transactions.GetByCheckoutID(ctx, payload.CheckoutRequestID)
	if err != nil {
		switch err {
		case store.ErrNotFound:
			app.notFoundResponse(w, r, errors.New("no such payment"))
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if tx.UserID != user.ID {
		app.notFoundResponse(w, r, errors.New("no such payment"))
		return
	}

	outcome := app.resolveOutcome(ctx, tx)

	response := PaymentStatusResponse{
		CheckoutRequestID: tx.CheckoutRequestID,
		Category:          tx.Category,
		Amount:            tx.Amount.String(),
		Status:            string(outcome.Status),
		Message:           outcome.Message,
		RetryAllowed:      outcome.RetryAllowed,
	}

	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

// resolveOutcome reports the payment's current outcome. Settled rows answer
// from the database; pending ones cost one provider query, and a terminal
// answer settles immediately instead of waiting for the background poller.
func (app *application) resolveOutcome(ctx context.Context, tx *store.Transaction) mpesa.Outcome {
	if tx.Status != store.TxPending {
		if tx.Status == store.TxNotFound {
			return mpesa.NotFoundOutcome()
		}
		if tx.Status == store.TxTimeout && !tx.ResultCode.Valid {
			return mpesa.TimeoutOutcome()
		}
		return mpesa.Classify(tx.ResultCode.String)
	}

	res, err := app.gateway.STKQuery(ctx, tx.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, mpesa.ErrTransactionNotFound) {
			outcome := mpesa.NotFoundOutcome()
			app.settlePayment(tx.CheckoutRequestID, outcome, "")
			return outcome
		}
		app.logger.Errorw("payment status check failed",
			"checkout_request_id", tx.CheckoutRequestID, "error", err)
		return mpesa.Classify("")
	}

	outcome := mpesa.Classify(res.ResultCode)
	if outcome.Status.Terminal() {
		app.settlePayment(tx.CheckoutRequestID, outcome, "")
	}
	return outcome
}

// mpesaCallback mirrors the Daraja result payload shape.
type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			// A pointer so an omitted code is distinguishable from 0,
			// which means success.
			ResultCode *int   `json:"ResultCode"`
			ResultDesc string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (c mpesaCallback) receipt() string {
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// mpesaCallbackHandler godoc
//
//	@Summary		M-Pesa result callback
//	@Description	Receives the asynchronous payment result from the provider and settles the matching transaction. Replays are harmless.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		400	{object}	ErrorBadRequestResponse
//	@Router			/payments/callback [post]
func (app *application) mpesaCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var callback mpesaCallback
	// Provider payloads grow fields over time; unknown ones must not
	// reject the result.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_578)).Decode(&callback); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	cb := callback.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		app.badRequestResponse(w, r, errors.New("callback is missing CheckoutRequestID"))
		return
	}
	if cb.ResultCode == nil {
		// Daraja always sends a ResultCode. A body without one is not a
		// provider result and must never settle anything, least of all
		// as a success.
		app.badRequestResponse(w, r, errors.New("callback is missing ResultCode"))
		return
	}

	outcome := mpesa.Classify(strconv.Itoa(*cb.ResultCode))
	app.logger.Infow("mpesa callback received",
		"checkout_request_id", cb.CheckoutRequestID,
		"result_code", *cb.ResultCode,
		"result_desc", cb.ResultDesc,
	)

	app.settlePayment(cb.CheckoutRequestID, outcome, callback.receipt())

	// Daraja expects this exact acknowledgement shape.
	if err := writeJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listTransactionsHandler godoc
//
//	@Summary		List my payments
//	@Description	Returns the authenticated member's recent M-Pesa transactions, newest first
//	@Tags			payments
//	@Produce		json
//	@Param			limit	query		int	false	"Max rows, default 20"
//	@Success		200		{array}		store.Transaction
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/payments [get]
func (app *application) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			app.badRequestResponse(w, r, errors.New("limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	txs, err := app.store.Transactions.ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, txs); err != nil {
		app.internalServerError(w, r, err)
	}
}
