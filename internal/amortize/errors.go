package amortize

import "fmt"

// InvalidInputError reports a malformed schedule parameter. Field names the
// offending input so API callers can map it back to their request.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}

// AmortizationError reports a numerically degenerate schedule, such as a
// non-positive principal component before the final period.
type AmortizationError struct {
	Period int
	Reason string
}

func (e *AmortizationError) Error() string {
	return fmt.Sprintf("amortization failed at period %d: %s", e.Period, e.Reason)
}
