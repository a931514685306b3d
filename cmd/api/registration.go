package main

import (
	"net/http"

	"sacco/internal/payflow"
)

type RegistrationStatusResponse struct {
	RegistrationPaid bool   `json:"registration_paid"`
	Fee              string `json:"fee"`
	MemberNumber     string `json:"member_number"`
}

// registrationStatusHandler godoc
//
//	@Summary		Registration fee status
//	@Description	Reports whether the member has paid the one-time registration fee
//	@Tags			registration
//	@Produce		json
//	@Success		200	{object}	RegistrationStatusResponse
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/registration/status [get]
func (app *application) registrationStatusHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	response := RegistrationStatusResponse{
		RegistrationPaid: user.RegistrationPaid,
		Fee:              payflow.RegistrationFee.String(),
		MemberNumber:     user.MemberNumber,
	}

	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

type PayRegistrationPayload struct {
	Phone string `json:"phone" validate:"required,saccophone"`
}

// payRegistrationHandler godoc
//
//	@Summary		Pay the registration fee
//	@Description	Sends an STK push for the fixed KSH 1000 registration fee
//	@Tags			registration
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PayRegistrationPayload	true	"M-Pesa phone number"
//	@Success		202		{object}	InitiatePaymentResponse
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		409		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/registration/pay [post]
func (app *application) payRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload PayRegistrationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.launchPayment(w, r, user, payflow.CategoryRegistration, payload.Phone, 0)
}
