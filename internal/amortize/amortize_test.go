package amortize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socertis/bnpl-simulator/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSchedule_ZeroRateEvenSplit(t *testing.T) {
	entries, err := Schedule(dec("1000.00"), decimal.Zero, 3, models.CadenceMonth)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	expected := []struct{ total, principal, interest string }{
		{"333.33", "333.33", "0.00"},
		{"333.33", "333.33", "0.00"},
		{"333.34", "333.34", "0.00"}, // last period absorbs the remainder
	}
	for i, want := range expected {
		assert.True(t, entries[i].Total.Equal(dec(want.total)),
			"period %d total: want %s, got %s", i+1, want.total, entries[i].Total)
		assert.True(t, entries[i].Principal.Equal(dec(want.principal)),
			"period %d principal: want %s, got %s", i+1, want.principal, entries[i].Principal)
		assert.True(t, entries[i].Interest.IsZero(),
			"period %d interest: want 0, got %s", i+1, entries[i].Interest)
	}
}

func TestSchedule_FinalPeriodCorrection(t *testing.T) {
	principal := dec("200000.00")
	entries, err := Schedule(principal, dec("47"), 4, models.CadenceMonth)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Principal)
	}
	assert.True(t, sum.Equal(principal),
		"principal components should sum to exactly %s, got %s", principal, sum)

	// The final row is corrected to the remaining balance, so its total is not
	// required to match the level payment of the earlier rows. Known behavior,
	// not a defect: all drift lands in the last installment.
	assert.True(t, entries[0].Total.Equal(entries[1].Total), "non-final rows share the level payment")
	assert.True(t, entries[1].Total.Equal(entries[2].Total), "non-final rows share the level payment")
}

func TestSchedule_SumsAreExact(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		rate      string
		periods   int
		cadence   models.Cadence
	}{
		{"monthly low rate", "1500.00", "5", 6, models.CadenceMonth},
		{"monthly high rate", "99999.99", "47", 12, models.CadenceMonth},
		{"weekly", "2500.00", "12.5", 8, models.CadenceWeek},
		{"daily 360-day year", "800.00", "36", 30, models.CadenceDay},
		{"single period", "1234.56", "10", 1, models.CadenceMonth},
		{"zero rate remainder", "100.00", "0", 7, models.CadenceWeek},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			principal := dec(tc.principal)
			entries, err := Schedule(principal, dec(tc.rate), tc.periods, tc.cadence)
			require.NoError(t, err)
			require.Len(t, entries, tc.periods)

			sumPrincipal, sumInterest, sumTotal := decimal.Zero, decimal.Zero, decimal.Zero
			for i, e := range entries {
				assert.True(t, e.Total.Equal(e.Principal.Add(e.Interest)),
					"period %d: total %s != principal %s + interest %s", i+1, e.Total, e.Principal, e.Interest)
				assert.True(t, e.Principal.IsPositive(), "period %d: principal must be positive", i+1)
				assert.False(t, e.Interest.IsNegative(), "period %d: interest must not be negative", i+1)
				sumPrincipal = sumPrincipal.Add(e.Principal)
				sumInterest = sumInterest.Add(e.Interest)
				sumTotal = sumTotal.Add(e.Total)
			}
			assert.True(t, sumPrincipal.Equal(principal),
				"principal components should sum to %s, got %s", principal, sumPrincipal)
			assert.True(t, sumTotal.Equal(sumPrincipal.Add(sumInterest)),
				"totals should sum to principal+interest")
		})
	}
}

func TestSchedule_Deterministic(t *testing.T) {
	first, err := Schedule(dec("54321.00"), dec("19.99"), 9, models.CadenceMonth)
	require.NoError(t, err)
	second, err := Schedule(dec("54321.00"), dec("19.99"), 9, models.CadenceMonth)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Total.Equal(second[i].Total))
		assert.True(t, first[i].Principal.Equal(second[i].Principal))
		assert.True(t, first[i].Interest.Equal(second[i].Interest))
	}
}

func TestSchedule_Validation(t *testing.T) {
	cases := []struct {
		name      string
		principal string
		rate      string
		periods   int
		cadence   models.Cadence
		field     string
	}{
		{"zero principal", "0", "5", 3, models.CadenceMonth, "principal"},
		{"negative principal", "-10", "5", 3, models.CadenceMonth, "principal"},
		{"negative rate", "100", "-1", 3, models.CadenceMonth, "annual_rate"},
		{"rate above cap", "100", "100.01", 3, models.CadenceMonth, "annual_rate"},
		{"zero periods", "100", "5", 0, models.CadenceMonth, "period_count"},
		{"bad cadence", "100", "5", 3, models.Cadence("fortnight"), "cadence"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Schedule(dec(tc.principal), dec(tc.rate), tc.periods, tc.cadence)
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}

func TestSchedule_DegenerateScheduleFails(t *testing.T) {
	// A tiny principal at the maximum rate over a long term rounds the first
	// principal component down to zero.
	_, err := Schedule(dec("1.00"), dec("100"), 360, models.CadenceMonth)
	var amortErr *AmortizationError
	require.ErrorAs(t, err, &amortErr)
}

func TestSchedule_ZeroRateDegenerateFails(t *testing.T) {
	_, err := Schedule(dec("0.02"), decimal.Zero, 3, models.CadenceMonth)
	var amortErr *AmortizationError
	require.ErrorAs(t, err, &amortErr)
}
