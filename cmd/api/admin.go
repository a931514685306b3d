package main

import (
	"errors"
	"net/http"
	"strconv"

	"sacco/internal/mailer"
	"sacco/internal/mpesa"
	"sacco/internal/params"
	"sacco/internal/store"

	"github.com/go-chi/chi/v5"
)

type AdminDashboardResponse struct {
	WelfareFundTotal string `json:"welfare_fund_total"`
	PendingDocuments int    `json:"pending_documents"`
	PendingLoans     int    `json:"pending_loans"`
}

// adminDashboardHandler godoc
//
//	@Summary		Admin dashboard
//	@Description	Returns the welfare fund balance and the review backlog sizes
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	AdminDashboardResponse
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/dashboard [get]
func (app *application) adminDashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fundTotal, err := app.store.Welfare.FundTotal(ctx)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pendingDocs, err := app.store.Documents.ListByStatus(ctx, store.DocumentPending, 500)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pendingLoans, err := app.store.Loans.ListByStatus(ctx, store.LoanPending, 500)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	response := AdminDashboardResponse{
		WelfareFundTotal: fundTotal.String(),
		PendingDocuments: len(pendingDocs),
		PendingLoans:     len(pendingLoans),
	}

	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

type AdminUserListResponse struct {
	Users      []store.User      `json:"users"`
	Pagination params.Pagination `json:"pagination"`
}

// adminListUsersHandler godoc
//
//	@Summary		List members
//	@Description	Returns members, newest first, paged with limit and offset
//	@Tags			admin
//	@Produce		json
//	@Param			limit	query		int	false	"Items per page, default 20"
//	@Param			page	query		int	false	"Page number, default 1"
//	@Success		200		{object}	AdminUserListResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/users [get]
func (app *application) adminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	p := params.ParsePagination(r.URL.Query())
	ctx := r.Context()

	users, err := app.store.Users.List(ctx, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	total, err := app.store.Users.Count(ctx)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	response := AdminUserListResponse{Users: users, Pagination: p}
	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

type AdminCreateUserPayload struct {
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,saccophone"`
	IDNumber  string `json:"id_number" validate:"required,min=6,max=20,numeric"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=MEMBER ADMIN"`
}

// adminCreateUserHandler godoc
//
//	@Summary		Admin creates a member
//	@Description	Creates a member directly from the admin panel, active immediately with no verification email
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AdminCreateUserPayload	true	"Member details"
//	@Success		201		{object}	store.User
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/users [post]
func (app *application) adminCreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var payload AdminCreateUserPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	memberNumber, err := app.memberNumbers.Generate()
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	user := &store.User{
		MemberNumber: memberNumber,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		Phone:        mpesa.FormatPhoneNumber(payload.Phone),
		IDNumber:     payload.IDNumber,
		Role:         payload.Role,
	}
	if err := user.Password.Set(payload.Password); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	ctx := r.Context()

	if err := app.store.Users.Create(ctx, user); err != nil {
		switch err {
		case store.ErrDuplicateEmail, store.ErrDuplicatePhone, store.ErrDuplicateIDNumber:
			app.badRequestResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	// No verification round-trip for admin-created accounts.
	if err := app.store.Users.UpdateUser(ctx, user.ID, map[string]interface{}{"is_active": true}); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	user.IsActive = true

	if err := app.jsonResponse(w, http.StatusCreated, user); err != nil {
		app.internalServerError(w, r, err)
	}
}

type AdminUpdateUserPayload struct {
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=MEMBER ADMIN"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// adminUpdateUserHandler godoc
//
//	@Summary		Update a member's role or active flag
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			userID	path		int						true	"Member ID"
//	@Param			payload	body		AdminUpdateUserPayload	true	"Fields to update"
//	@Success		200		{object}	map[string]string
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/users/{userID} [put]
func (app *application) adminUpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid user ID"))
		return
	}

	var payload AdminUpdateUserPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	updates := map[string]interface{}{}
	if payload.Role != nil {
		updates["role"] = *payload.Role
	}
	if payload.IsActive != nil {
		updates["is_active"] = *payload.IsActive
	}
	if len(updates) == 0 {
		app.badRequestResponse(w, r, errors.New("nothing to update"))
		return
	}

	if err := app.store.Users.UpdateUser(r.Context(), userID, updates); err != nil {
		switch err {
		case store.ErrNotFound:
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"message": "member updated"}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminListDocumentsHandler godoc
//
//	@Summary		List KYC documents by status
//	@Tags			admin
//	@Produce		json
//	@Param			status	query		string	false	"PENDING, VERIFIED or REJECTED; default PENDING"
//	@Param			limit	query		int		false	"Max rows, default 20"
//	@Success		200		{array}		store.Document
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/documents [get]
func (app *application) adminListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = store.DocumentPending
	}
	switch status {
	case store.DocumentPending, store.DocumentVerified, store.DocumentRejected:
	default:
		app.badRequestResponse(w, r, errors.New("unknown document status"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			app.badRequestResponse(w, r, errors.New("limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	docs, err := app.store.Documents.ListByStatus(r.Context(), status, limit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, docs); err != nil {
		app.internalServerError(w, r, err)
	}
}

type ReviewDocumentPayload struct {
	Status string `json:"status" validate:"required,oneof=VERIFIED REJECTED"`
	Note   string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// adminReviewDocumentHandler godoc
//
//	@Summary		Review a KYC document
//	@Description	Marks a document VERIFIED or REJECTED with an optional note for the member
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			documentID	path		int						true	"Document ID"
//	@Param			payload		body		ReviewDocumentPayload	true	"Decision"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		404			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/documents/{documentID} [put]
func (app *application) adminReviewDocumentHandler(w http.ResponseWriter, r *http.Request) {
	reviewer := getUserFromContext(r)

	documentID, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid document ID"))
		return
	}

	var payload ReviewDocumentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.store.Documents.SetStatus(r.Context(), documentID, payload.Status, payload.Note, reviewer.ID)
	if err != nil {
		switch err {
		case store.ErrNotFound:
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"message": "document reviewed"}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminListLoansHandler godoc
//
//	@Summary		List loans by status
//	@Tags			admin
//	@Produce		json
//	@Param			status	query		string	false	"PENDING, APPROVED, REJECTED or REPAID; default PENDING"
//	@Param			limit	query		int		false	"Max rows, default 20"
//	@Success		200		{array}		store.Loan
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/loans [get]
func (app *application) adminListLoansHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = store.LoanPending
	}
	switch status {
	case store.LoanPending, store.LoanApproved, store.LoanRejected, store.LoanRepaid:
	default:
		app.badRequestResponse(w, r, errors.New("unknown loan status"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			app.badRequestResponse(w, r, errors.New("limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	loans, err := app.store.Loans.ListByStatus(r.Context(), status, limit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, loans); err != nil {
		app.internalServerError(w, r, err)
	}
}

type DecideLoanPayload struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// adminDecideLoanHandler godoc
//
//	@Summary		Decide a loan application
//	@Description	Approves or rejects a pending loan and emails the decision to the applicant. Decisions are final.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			loanID	path		int					true	"Loan ID"
//	@Param			payload	body		DecideLoanPayload	true	"Decision"
//	@Success		200		{object}	store.Loan
//	@Failure		400		{object}	ErrorBadRequestResponse
//	@Failure		404		{object}	ErrorBadRequestResponse
//	@Failure		409		{object}	ErrorBadRequestResponse	"Loan already decided"
//	@Failure		500		{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/loans/{loanID} [put]
func (app *application) adminDecideLoanHandler(w http.ResponseWriter, r *http.Request) {
	reviewer := getUserFromContext(r)

	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid loan ID"))
		return
	}

	var payload DecideLoanPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx := r.Context()

	loan, err := app.store.Loans.GetByID(ctx, loanID)
	if err != nil {
		switch err {
		case store.ErrNotFound:
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.store.Loans.SetStatus(ctx, loanID, payload.Status, reviewer.ID); err != nil {
		switch err {
		case store.ErrConflict:
			app.conflictResponse(w, r, errors.New("loan has already been decided"))
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	loan.Status = payload.Status

	applicant, err := app.store.Users.GetByID(ctx, loan.UserID)
	if err != nil {
		app.logger.Errorw("load loan applicant", "loan_id", loanID, "error", err)
	} else {
		vars := struct {
			Username string
			Amount   string
			Status   string
		}{
			Username: applicant.FirstName,
			Amount:   loan.Amount.String(),
			Status:   loan.Status,
		}
		// The decision is already recorded; a failed mail only gets logged.
		if _, err := app.mailer.Send(mailer.LoanStatusTemplate, applicant.FirstName, applicant.Email, vars); err != nil {
			app.logger.Errorw("error sending loan status email", "loan_id", loanID, "error", err)
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, loan); err != nil {
		app.internalServerError(w, r, err)
	}
}
