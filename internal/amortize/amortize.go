// Package amortize computes installment payment schedules. The computation is
// stateless and deterministic: identical inputs always produce an identical
// schedule, so historical schedules can be recomputed for auditing.
package amortize

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/socertis/bnpl-simulator/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	maxRate = decimal.NewFromInt(100)
)

// Entry is one period of an amortization schedule. All amounts are rounded
// half-up to 2 decimal places and Total = Principal + Interest exactly.
type Entry struct {
	Total     decimal.Decimal
	Principal decimal.Decimal
	Interest  decimal.Decimal
}

// Schedule splits principal into periods level payments at the given annual
// rate (as a percentage, 0-100) and cadence.
//
// The level payment is computed with the standard amortizing-loan formula
// payment = rate*PV / (1 - (1+rate)^-n). Every monetary value is rounded once,
// when computed; intermediate running sums are never re-rounded. The final
// period's principal component is overridden with the remaining balance so the
// principal components always sum to the original principal exactly, absorbing
// all rounding drift in the last installment. With a high rate and few periods
// this can make the final installment noticeably larger than the level
// payment; that balloon is intended.
func Schedule(principal, annualRatePercent decimal.Decimal, periods int, cadence models.Cadence) ([]Entry, error) {
	if !principal.IsPositive() {
		return nil, &InvalidInputError{Field: "principal", Reason: "must be greater than zero"}
	}
	if annualRatePercent.IsNegative() || annualRatePercent.GreaterThan(maxRate) {
		return nil, &InvalidInputError{Field: "annual_rate", Reason: "must be between 0 and 100"}
	}
	if periods < 1 {
		return nil, &InvalidInputError{Field: "period_count", Reason: "must be at least 1"}
	}
	if !cadence.Valid() {
		return nil, &InvalidInputError{Field: "cadence", Reason: "must be one of day, week, month"}
	}

	if annualRatePercent.IsZero() {
		return zeroRateSchedule(principal, periods)
	}

	rate := annualRatePercent.Div(hundred).Div(decimal.NewFromInt(cadence.PeriodsPerYear()))
	payment := levelPayment(principal, rate, periods)

	entries := make([]Entry, 0, periods)
	remaining := principal
	for period := 1; period <= periods; period++ {
		interest := remaining.Mul(rate).Round(2)
		principalComp := payment.Sub(interest)
		total := payment

		if period == periods {
			// Final-period correction: whatever balance remains becomes the
			// principal component, even if it differs from the formula output.
			principalComp = remaining
			total = principalComp.Add(interest)
		} else if !principalComp.IsPositive() {
			return nil, &AmortizationError{Period: period, Reason: "non-positive principal component"}
		}

		remaining = remaining.Sub(principalComp)
		entries = append(entries, Entry{Total: total, Principal: principalComp, Interest: interest})
	}
	return entries, nil
}

// zeroRateSchedule splits principal evenly, the last period absorbing the
// division remainder.
func zeroRateSchedule(principal decimal.Decimal, periods int) ([]Entry, error) {
	n := decimal.NewFromInt(int64(periods))
	per := principal.DivRound(n, 2)
	if !per.IsPositive() {
		return nil, &AmortizationError{Period: 1, Reason: "non-positive principal component"}
	}
	last := principal.Sub(per.Mul(n.Sub(decimal.NewFromInt(1))))
	if !last.IsPositive() {
		return nil, &AmortizationError{Period: periods, Reason: "non-positive principal component"}
	}

	entries := make([]Entry, 0, periods)
	for period := 1; period <= periods; period++ {
		amount := per
		if period == periods {
			amount = last
		}
		entries = append(entries, Entry{Total: amount, Principal: amount, Interest: decimal.Zero})
	}
	return entries, nil
}

// levelPayment computes the constant per-period payment. The power term uses
// float64, then the result is rounded once back into decimal.
func levelPayment(principal, rate decimal.Decimal, periods int) decimal.Decimal {
	rateF, _ := rate.Float64()
	principalF, _ := principal.Float64()
	factor := math.Pow(1+rateF, float64(periods))
	paymentF := principalF * rateF * factor / (factor - 1)
	return decimal.NewFromFloat(paymentF).Round(2)
}
