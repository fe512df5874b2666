package domain

import dErrors "khata/pkg/domain-errors"

// PaymentMode is the collection scheme an account runs on.
// Invariant: the value must be one of the three supported modes.
//
// Usage: construct via ParsePaymentMode at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type PaymentMode string

// Supported payment modes.
const (
	// PaymentModeDaily accumulates small deposits capped per calendar month.
	PaymentModeDaily PaymentMode = "Daily"
	// PaymentModeMonthly takes exactly one fixed installment per calendar month.
	PaymentModeMonthly PaymentMode = "Monthly"
	// PaymentModeYearly takes a single payment of the full contract amount.
	PaymentModeYearly PaymentMode = "Yearly"
)

// validPaymentModes is the single source of truth for valid modes.
var validPaymentModes = map[PaymentMode]bool{
	PaymentModeDaily:   true,
	PaymentModeMonthly: true,
	PaymentModeYearly:  true,
}

// ParsePaymentMode constructs a PaymentMode from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParsePaymentMode(s string) (PaymentMode, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "payment mode cannot be empty")
	}
	m := PaymentMode(s)
	if !m.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid payment mode %q", s)
	}
	return m, nil
}

// IsValid checks if the payment mode is one of the supported enum values.
func (m PaymentMode) IsValid() bool {
	return validPaymentModes[m]
}

func (m PaymentMode) String() string {
	return string(m)
}
