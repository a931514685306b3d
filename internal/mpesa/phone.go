package mpesa

import (
	"regexp"
	"strings"
)

var safaricomPattern = regexp.MustCompile(`^254[17]\d{8}$`)

// FormatPhoneNumber normalizes a subscriber number to international format.
// "0712345678" becomes "254712345678", "712345678" becomes "254712345678",
// numbers already prefixed with 254 pass through. Anything else is returned
// as-is; ambiguous inputs are not corrected further.
func FormatPhoneNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		return "254" + digits[1:]
	}
	if !strings.HasPrefix(digits, "254") &&
		(strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) {
		return "254" + digits
	}
	return digits
}

// ValidatePhoneNumber reports whether the number normalizes to a Safaricom
// range (254 followed by 7xx or 1xx and eight more digits).
func ValidatePhoneNumber(phone string) bool {
	return safaricomPattern.MatchString(FormatPhoneNumber(phone))
}
