package main

import (
	"errors"
	"fmt"
	"net/http"

	"sacco/internal/store"

	"github.com/shopspring/decimal"
)

// A member may borrow up to this multiple of their share value.
var loanShareMultiple = decimal.NewFromInt(3)

type ApplyLoanPayload struct {
	Amount     string `json:"amount" validate:"required"`
	TermMonths int    `json:"term_months" validate:"required,min=1,max=60"`
	Purpose    string `json:"purpose" validate:"required,min=5,max=500"`
}

// applyLoanHandler godoc
//
//	@Summary		Apply for a loan
//	@Description	Submits a loan application. The member must have paid the registration fee and may borrow up to three times their share value.
//	@Tags			loans
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ApplyLoanPayload	true	"Loan details"
//	@Success		201		{object}	store.Loan
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/loans [post]
func (app *application) applyLoanHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload ApplyLoanPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		app.badRequestResponse(w, r, errors.New("amount must be a positive number"))
		return
	}

	if !user.RegistrationPaid {
		app.badRequestResponse(w, r, errors.New("pay the registration fee before applying for a loan"))
		return
	}

	ctx := r.Context()

	summary, err := app.store.Shares.Summary(ctx, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	limit := summary.TotalValue.Mul(loanShareMultiple)
	if amount.GreaterThan(limit) {
		app.badRequestResponse(w, r, fmt.Errorf(
			"loan amount is limited to %s times your share value (KSH %s)", loanShareMultiple, limit))
		return
	}

	loan := &store.Loan{
		UserID:     user.ID,
		Amount:     amount,
		TermMonths: payload.TermMonths,
		Purpose:    payload.Purpose,
	}

	if err := app.store.Loans.Apply(ctx, loan); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, loan); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listMyLoansHandler godoc
//
//	@Summary		List my loans
//	@Description	Returns all of the member's loan applications, newest first
//	@Tags			loans
//	@Produce		json
//	@Success		200	{array}		store.Loan
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/loans [get]
func (app *application) listMyLoansHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	loans, err := app.store.Loans.ListByMember(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, loans); err != nil {
		app.internalServerError(w, r, err)
	}
}
