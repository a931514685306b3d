package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"sacco/internal/store"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var allowedDocumentTypes = map[string]bool{
	store.DocumentTypeNationalID: true,
	store.DocumentTypePassport:   true,
	store.DocumentTypePayslip:    true,
}

// uploadKYCDocument pushes the file to Cloudinary under a per-member public ID.
func (app *application) uploadKYCDocument(file io.Reader, userID int64, docType string) (string, error) {
	publicID := fmt.Sprintf("member_%d_%s_%d", userID, docType, time.Now().UnixNano())

	resp, err := app.cld.Upload.Upload(
		context.Background(), // external call, not tied to the request deadline
		file,
		uploader.UploadParams{
			Folder:    "kyc_documents",
			PublicID:  publicID,
			Overwrite: api.Bool(false),
		},
	)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	return resp.SecureURL, nil
}

// uploadDocumentHandler godoc
//
//	@Summary		Upload a KYC document
//	@Description	Uploads an identity or income document for verification. Accepts JPEG, PNG and PDF up to 5MB.
//	@Tags			users
//	@Accept			mpfd
//	@Produce		json
//	@Param			document	formData	file	true	"Document file"
//	@Param			type		formData	string	true	"Document type: NATIONAL_ID, PASSPORT or PAYSLIP"
//	@Success		201			{object}	store.Document
//	@Failure		400			{object}	ErrorBadRequestResponse
//	@Failure		500			{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/users/documents [post]
func (app *application) uploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("unable to parse form, file size limit is 5MB"))
		return
	}

	docType := r.FormValue("type")
	if !allowedDocumentTypes[docType] {
		app.badRequestResponse(w, r, fmt.Errorf("unknown document type %q", docType))
		return
	}

	file, fileHeader, err := r.FormFile("document")
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("unable to retrieve file"))
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	switch contentType {
	case "image/jpeg", "image/png", "application/pdf":
	default:
		app.badRequestResponse(w, r, fmt.Errorf("only JPEG, PNG and PDF files are allowed"))
		return
	}

	url, err := app.uploadKYCDocument(file, user.ID, docType)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	doc := &store.Document{
		UserID: user.ID,
		Type:   docType,
		URL:    url,
	}

	if err := app.store.Documents.Create(r.Context(), doc); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, doc); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listDocumentsHandler godoc
//
//	@Summary		List my KYC documents
//	@Description	Returns the authenticated member's uploaded documents with review status
//	@Tags			users
//	@Produce		json
//	@Success		200	{array}		store.Document
//	@Failure		500	{object}	ErrorInternalServerResponse
//	@Security		ApiKeyAuth
//	@Router			/users/documents [get]
func (app *application) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	docs, err := app.store.Documents.ListByUser(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, docs); err != nil {
		app.internalServerError(w, r, err)
	}
}
