package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTerminalStatuses(t *testing.T) {
	testCases := []struct {
		code     string
		status   Status
		canRetry bool
	}{
		{CodeSuccess, StatusCompleted, false},
		{CodeUserCancelled, StatusCancelled, true},
		{CodeTimeout, StatusTimeout, true},
		{CodeInsufficientFunds, StatusFailed, true},
		{CodeWrongPIN, StatusFailed, true},
		{CodeInvalidNumber, StatusFailed, true},
		{CodeDuplicateRequest, StatusFailed, false},
		{CodeInvalidAccount, StatusFailed, true},
		{CodeLimitExceeded, StatusFailed, false},
		{CodeTransactionFailed, StatusFailed, true},
	}

	for _, tc := range testCases {
		out := Classify(tc.code)
		assert.Equal(t, tc.status, out.Status, "code %s", tc.code)
		assert.Equal(t, tc.canRetry, out.RetryAllowed, "code %s", tc.code)
		assert.True(t, out.Status.Terminal(), "code %s should be terminal", tc.code)
		assert.NotEmpty(t, out.Message, "code %s", tc.code)
	}
}

func TestClassifyPending(t *testing.T) {
	for _, code := range []string{"", "None", "null"} {
		out := Classify(code)
		assert.Equal(t, StatusPending, out.Status)
		assert.False(t, out.Status.Terminal())
	}
}

func TestClassifyUnrecognizedCode(t *testing.T) {
	out := Classify("9999")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, out.RetryAllowed)
	assert.Equal(t, "Payment processing failed. Please try again.", out.Message)
}

func TestClassifyMessages(t *testing.T) {
	assert.Equal(t, "Payment completed successfully", Classify(CodeSuccess).Message)
	assert.Equal(t,
		"Insufficient funds in your M-Pesa account. Please top up and try again.",
		Classify(CodeInsufficientFunds).Message)
	assert.Equal(t,
		"Wrong M-Pesa PIN entered. Please try again with the correct PIN.",
		Classify(CodeWrongPIN).Message)
	assert.Equal(t,
		`Payment was cancelled. Click "Try Again" when ready.`,
		Classify(CodeUserCancelled).Message)
	assert.Equal(t,
		"Payment request timed out. Please try again.",
		Classify(CodeTimeout).Message)
	assert.Equal(t,
		"A similar payment request is in progress. Please wait a moment.",
		Classify(CodeDuplicateRequest).Message)
	assert.Equal(t,
		"Transaction limit exceeded. Try a lower amount or contact M-Pesa.",
		Classify(CodeLimitExceeded).Message)
	assert.Equal(t,
		"Transaction not found or was cancelled. Please try again.",
		NotFoundOutcome().Message)
}

// Classify keeps no hidden state: calling it twice with the same code must
// return equal outcomes.
func TestClassifyIdempotent(t *testing.T) {
	for _, code := range []string{CodeSuccess, CodeWrongPIN, CodeDuplicateRequest, "", "bogus"} {
		assert.Equal(t, Classify(code), Classify(code))
	}
}

func TestTimeoutOutcome(t *testing.T) {
	out := TimeoutOutcome()
	assert.Equal(t, StatusTimeout, out.Status)
	assert.True(t, out.RetryAllowed)
	assert.Equal(t, "Payment request timed out. Please try again.", out.Message)
}
