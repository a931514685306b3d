package mailer

import "embed"

const (
	FromName           = "Sacco"
	maxRetries         = 3
	OTPTemplate        = "otp_verification.tmpl"
	WelcomeTemplate    = "member_welcome.tmpl"
	LoanStatusTemplate = "loan_status.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
