package amort

import (
	"fmt"
	"math"
	"time"
)

// All money values are int64 in the smallest currency unit (lovelace).
// Results are rounded half-even, matching the display precision of two
// decimal places of the unit the principal is quoted in.

// Calendar-pinned period lengths for the common payment frequencies.
// Naive yearLength/frequency division drifts from calendar reality for
// these cases (365/12 days is not the 30-day month a payment schedule
// expects), so they are pinned explicitly.
const (
	yearLength    = 365 * 24 * time.Hour
	quarterLength = 91 * 24 * time.Hour
	monthLength   = 30 * 24 * time.Hour
	weekLength    = 7 * 24 * time.Hour
	dayLength     = 24 * time.Hour
	hourLength    = time.Hour
)

// InvalidTermsError signals a loan parameter outside its valid domain.
// This is a programming/config error, never retried.
type InvalidTermsError struct {
	Field string
	Value int64
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s=%d", e.Field, e.Value)
}

// TermLength maps payments-per-year to the duration of one payment period.
// Frequencies 4, 12, 52, 365 and 8760 use calendar-pinned constants; any
// other positive frequency falls back to an even division of the year.
func TermLength(frequency int64) (time.Duration, error) {
	if frequency <= 0 {
		return 0, &InvalidTermsError{Field: "frequency", Value: frequency}
	}

	switch frequency {
	case 4:
		return quarterLength, nil
	case 12:
		return monthLength, nil
	case 52:
		return weekLength, nil
	case 365:
		return dayLength, nil
	case 8760:
		return hourLength, nil
	}

	return time.Duration(int64(yearLength) / frequency), nil
}

// NominalPayment computes the per-period annuity payment
//
//	P * r(1+r)^n / ((1+r)^n - 1)
//
// where r = (aprBps/10000)/frequency and n = installments. A zero rate
// degenerates to principal/installments (no division by zero).
func NominalPayment(principal, aprBps, frequency, installments int64) (int64, error) {
	if frequency <= 0 {
		return 0, &InvalidTermsError{Field: "frequency", Value: frequency}
	}
	if installments <= 0 {
		return 0, &InvalidTermsError{Field: "installments", Value: installments}
	}

	if aprBps == 0 {
		return int64(math.RoundToEven(float64(principal) / float64(installments))), nil
	}

	r := float64(aprBps) / 10_000 / float64(frequency)
	growth := math.Pow(1+r, float64(installments))
	payment := float64(principal) * r * growth / (growth - 1)

	return int64(math.RoundToEven(payment)), nil
}

// TotalInterest is the interest paid over the full schedule:
// payment*installments - principal.
func TotalInterest(principal, payment, installments int64) int64 {
	return payment*installments - principal
}

// LateWindow is the grace period before a missed payment counts as late:
// 10% of one term length, floor-rounded.
func LateWindow(term time.Duration) time.Duration {
	return term / 10
}
