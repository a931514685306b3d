package main

import (
	"errors"
	"net/http"
	"strconv"

	"sacco/internal/payflow"
)

// sharesSummaryHandler godoc
//
//	@Summary		Share holdings summary
//	@Description	Returns the member's total shares, their value and the number of purchases
//	@Tags			shares
//	@Produce		json
//	@Success		200	{object}	store.ShareSummary
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/shares/summary [get]
func (app *application) sharesSummaryHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	summary, err := app.store.Shares.Summary(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, summary); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listSharePurchasesHandler godoc
//
//	@Summary		List share purchases
//	@Description	Returns the member's share purchases, newest first
//	@Tags			shares
//	@Produce		json
//	@Param			limit	query		int	false	"Max rows, default 20"
//	@Success		200		{array}		store.SharePurchase
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/shares/purchases [get]
func (app *application) listSharePurchasesHandler(w http.ResponseWriter, r *http.Request) {
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

	purchases, err := app.store.Shares.ListPurchases(r.Context(), user.ID, limit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, purchases); err != nil {
		app.internalServerError(w, r, err)
	}
}

type PurchaseSharesPayload struct {
	Phone  string `json:"phone" validate:"required,saccophone"`
	Shares int    `json:"shares" validate:"required,min=1,max=50"`
}

// purchaseSharesHandler godoc
//
//	@Summary		Buy shares
//	@Description	Sends an STK push charging shares x unit value, between 1 and 50 shares per transaction
//	@Tags			shares
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PurchaseSharesPayload	true	"Phone number and share count"
//	@Success		202		{object}	InitiatePaymentResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		409		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/shares/purchase [post]
func (app *application) purchaseSharesHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload PurchaseSharesPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.launchPayment(w, r, user, payflow.CategoryShares, payload.Phone, payload.Shares)
}
