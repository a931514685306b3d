package mpesa

// Daraja STK push result codes as returned by the status query.
// The query API reports them as strings, so we keep them as strings too.
const (
	CodeSuccess           = "0"
	CodeUserCancelled     = "1032"
	CodeTimeout           = "1037"
	CodeInsufficientFunds = "2001"
	CodeWrongPIN          = "2002"
	CodeInvalidNumber     = "2041"
	CodeDuplicateRequest  = "2042"
	CodeInvalidAccount    = "2043"
	CodeLimitExceeded     = "2044"
	CodeTransactionFailed = "2045"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusNotFound  Status = "not_found"
)

// Terminal reports whether a status ends the polling loop.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Outcome is the semantic result of one payment attempt, derived from a
// provider result code. It is always renderable: Message is never empty.
type Outcome struct {
	Status       Status `json:"status"`
	ResultCode   string `json:"result_code,omitempty"`
	Message      string `json:"message"`
	RetryAllowed bool   `json:"retry_allowed"`
}

const (
	MsgNotFound = "Transaction not found or was cancelled. Please try again."
	msgDefault  = "Payment processing failed. Please try again."
)

var messages = map[string]string{
	CodeSuccess:           "Payment completed successfully",
	CodeInsufficientFunds: "Insufficient funds in your M-Pesa account. Please top up and try again.",
	CodeWrongPIN:          "Wrong M-Pesa PIN entered. Please try again with the correct PIN.",
	CodeUserCancelled:     `Payment was cancelled. Click "Try Again" when ready.`,
	CodeTimeout:           "Payment request timed out. Please try again.",
	CodeInvalidNumber:     "Invalid phone number format. Please enter a valid M-Pesa number.",
	CodeDuplicateRequest:  "A similar payment request is in progress. Please wait a moment.",
	CodeInvalidAccount:    "Invalid M-Pesa account. Please check your number and try again.",
	CodeLimitExceeded:     "Transaction limit exceeded. Try a lower amount or contact M-Pesa.",
	CodeTransactionFailed: "Transaction failed. Please try again or use a different number.",
}

// Classify maps a provider result code to an Outcome. It is a pure function:
// same code in, same outcome out. An empty or "None" code means the push is
// still on the customer's handset and the caller should keep polling.
// Unrecognized codes never escape as errors; they classify as a generic,
// retryable failure.
func Classify(resultCode string) Outcome {
	switch resultCode {
	case "", "None", "null":
		return Outcome{Status: StatusPending, Message: "Payment is being processed"}
	case CodeSuccess:
		return Outcome{Status: StatusCompleted, ResultCode: resultCode, Message: messages[CodeSuccess]}
	case CodeUserCancelled:
		return Outcome{Status: StatusCancelled, ResultCode: resultCode, Message: messages[CodeUserCancelled], RetryAllowed: true}
	case CodeTimeout:
		return Outcome{Status: StatusTimeout, ResultCode: resultCode, Message: messages[CodeTimeout], RetryAllowed: true}
	case CodeDuplicateRequest, CodeLimitExceeded:
		return Outcome{Status: StatusFailed, ResultCode: resultCode, Message: messages[resultCode], RetryAllowed: false}
	case CodeInsufficientFunds, CodeWrongPIN, CodeInvalidNumber, CodeInvalidAccount, CodeTransactionFailed:
		return Outcome{Status: StatusFailed, ResultCode: resultCode, Message: messages[resultCode], RetryAllowed: true}
	default:
		return Outcome{Status: StatusFailed, ResultCode: resultCode, Message: msgDefault, RetryAllowed: true}
	}
}

// NotFoundOutcome is the terminal outcome used when the provider or the
// backend reports the transaction as missing.
func NotFoundOutcome() Outcome {
	return Outcome{Status: StatusNotFound, Message: MsgNotFound, RetryAllowed: true}
}

// TimeoutOutcome is the forced outcome when the polling budget is exhausted
// without the provider reaching a terminal result.
func TimeoutOutcome() Outcome {
	return Outcome{Status: StatusTimeout, Message: messages[CodeTimeout], RetryAllowed: true}
}
