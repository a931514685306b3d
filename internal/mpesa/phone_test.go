package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPhoneNumber(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"0712345678", "254712345678"},
		{"0110345678", "254110345678"},
		{"712345678", "254712345678"},
		{"112345678", "254112345678"},
		{"254712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"07-1234-5678", "254712345678"},
		// Ambiguous inputs pass through unchanged after digit stripping.
		{"9712345678", "9712345678"},
		{"44712345678", "44712345678"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FormatPhoneNumber(tc.input), "input %q", tc.input)
	}
}

func TestFormatPhoneNumberIdentityOn254(t *testing.T) {
	numbers := []string{"254712345678", "254110000000", "254799999999"}
	for _, n := range numbers {
		assert.Equal(t, n, FormatPhoneNumber(n))
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	valid := []string{"0712345678", "254712345678", "0112345678", "712345678", "+254 712 345 678"}
	for _, n := range valid {
		assert.True(t, ValidatePhoneNumber(n), "expected valid: %q", n)
	}

	invalid := []string{
		"",
		"12345",
		"0812345678",    // not a Safaricom range
		"25471234567",   // too short
		"2547123456789", // too long
		"notanumber",
	}
	for _, n := range invalid {
		assert.False(t, ValidatePhoneNumber(n), "expected invalid: %q", n)
	}
}
