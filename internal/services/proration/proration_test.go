package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

func date(y int, m time.Month, d int) time.Time {
	return timeutil.Date(y, m, d)
}

func frac(num, den int64) decimal.Decimal {
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den))
}

func TestFractionUsed_Boundaries(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		asOf     time.Time
		expected decimal.Decimal
	}{
		{
			name:  "as of period start is exactly zero",
			start: date(2026, time.January, 10), end: date(2026, time.February, 10),
			asOf: date(2026, time.January, 10), expected: decimal.Zero,
		},
		{
			name:  "as of period end is exactly one",
			start: date(2026, time.January, 10), end: date(2026, time.February, 10),
			asOf: date(2026, time.February, 10), expected: decimal.NewFromInt(1),
		},
		{
			name:  "past period end stays one",
			start: date(2026, time.January, 10), end: date(2026, time.February, 10),
			asOf: date(2026, time.June, 1), expected: decimal.NewFromInt(1),
		},
		{
			name:  "february window non-leap",
			start: date(2026, time.February, 1), end: date(2026, time.March, 1),
			asOf: date(2026, time.February, 15), expected: frac(14, 28),
		},
		{
			name:  "february window leap year",
			start: date(2028, time.February, 1), end: date(2028, time.March, 1),
			asOf: date(2028, time.February, 15), expected: frac(14, 29),
		},
		{
			name:  "mid period over 31-day window",
			start: date(2026, time.March, 11), end: date(2026, time.April, 10),
			asOf: date(2026, time.March, 25), expected: frac(14, 31),
		},
		{
			name:  "period end before month boundary caps numerator",
			start: date(2026, time.January, 20), end: date(2026, time.February, 10),
			asOf: date(2026, time.February, 5), expected: frac(16, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FractionUsed(tt.start, tt.end, tt.asOf)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.expected), "got %s, want %s", got, tt.expected)
		})
	}
}

func TestFractionUsed_ExactOneAtEndOfFebruary(t *testing.T) {
	// 28-day and 29-day windows must both return exactly 1 at the boundary
	for _, start := range []time.Time{date(2026, time.February, 1), date(2028, time.February, 1)} {
		end := timeutil.AddMonthsClamped(start, 1)
		got, err := FractionUsed(start, end, end)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(1)), "window from %s: got %s", start, got)
	}
}

func TestFractionUsed_AsOfBeforeStart(t *testing.T) {
	_, err := FractionUsed(date(2026, time.January, 10), date(2026, time.February, 10), date(2026, time.January, 9))

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeProrationInvalidRange))
}

func TestFractionUsed_MonotonicWithinRange(t *testing.T) {
	start := date(2026, time.January, 10)
	end := date(2026, time.February, 10)

	prev := decimal.NewFromInt(-1)
	for asOf := start; !asOf.After(end); asOf = asOf.AddDate(0, 0, 1) {
		got, err := FractionUsed(start, end, asOf)
		require.NoError(t, err)

		assert.True(t, got.GreaterThanOrEqual(decimal.Zero), "below zero at %s", asOf)
		assert.True(t, got.LessThanOrEqual(decimal.NewFromInt(1)), "above one at %s", asOf)
		assert.True(t, got.GreaterThanOrEqual(prev), "not monotonic at %s", asOf)
		prev = got
	}
}

func TestFractionUsed_IgnoresTimeOfDay(t *testing.T) {
	a, err := FractionUsed(
		time.Date(2026, time.January, 10, 13, 45, 0, 0, time.UTC),
		date(2026, time.February, 10),
		time.Date(2026, time.January, 20, 23, 59, 59, 0, time.UTC),
	)
	require.NoError(t, err)
	b, err := FractionUsed(date(2026, time.January, 10), date(2026, time.February, 10), date(2026, time.January, 20))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
}
