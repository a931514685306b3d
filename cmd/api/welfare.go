package main

import (
	"errors"
	"net/http"
	"strconv"

	"sacco/internal/payflow"
)

// listContributionsHandler godoc
//
//	@Summary		List welfare contributions
//	@Description	Returns the member's confirmed welfare contributions, newest first
//	@Tags			welfare
//	@Produce		json
//	@Param			limit	query		int	false	"Max rows, default 20"
//	@Success		200		{array}		store.WelfareContribution
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/welfare/contributions [get]
func (app *application) listContributionsHandler(w http.ResponseWriter, r *http.Request) {
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

	contributions, err := app.store.Welfare.ListByMember(r.Context(), user.ID, limit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, contributions); err != nil {
		app.internalServerError(w, r, err)
	}
}

type ContributeWelfarePayload struct {
	Phone string `json:"phone" validate:"required,saccophone"`
}

// contributeWelfareHandler godoc
//
//	@Summary		Make the monthly welfare contribution
//	@Description	Sends an STK push for the fixed KSH 300 monthly contribution. One contribution per calendar month.
//	@Tags			welfare
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ContributeWelfarePayload	true	"M-Pesa phone number"
//	@Success		202		{object}	InitiatePaymentResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		409		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/welfare/contribute [post]
func (app *application) contributeWelfareHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload ContributeWelfarePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.launchPayment(w, r, user, payflow.CategoryWelfare, payload.Phone, 0)
}
