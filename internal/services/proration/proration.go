// Package proration computes the fraction of a billing period actually used
// between two dates. Pure date math, no I/O.
package proration

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tupinet/billing-engine/internal/domain"
	"github.com/tupinet/billing-engine/pkg/timeutil"
)

var one = decimal.NewFromInt(1)

// FractionUsed returns the used fraction of the billing period starting at
// periodStart, as of the given date, in [0, 1].
//
// periodEnd is exclusive of the "next period starts" boundary. The
// denominator is the number of calendar days in the one-month window
// starting at periodStart (28-31, by actual calendar subtraction); the
// numerator is whole days from periodStart to min(asOf, periodEnd).
// Returns exactly 0 when asOf <= periodStart and exactly 1 when
// asOf >= periodEnd.
//
// Fails with PRORATION_INVALID_RANGE when asOf precedes periodStart: that is
// always a caller bug, never retried.
func FractionUsed(periodStart, periodEnd, asOf time.Time) (decimal.Decimal, error) {
	periodStart = timeutil.StartOfDay(periodStart)
	periodEnd = timeutil.StartOfDay(periodEnd)
	asOf = timeutil.StartOfDay(asOf)

	if asOf.Before(periodStart) {
		return decimal.Zero, domain.NewDomainError(domain.ErrorCodeProrationInvalidRange, "reference date precedes period start").
			WithDetail("period_start", periodStart.Format(time.DateOnly)).
			WithDetail("as_of", asOf.Format(time.DateOnly))
	}
	if !asOf.Before(periodEnd) {
		return one, nil
	}
	if asOf.Equal(periodStart) {
		return decimal.Zero, nil
	}

	days := timeutil.DaysBetween(periodStart, timeutil.AddMonthsClamped(periodStart, 1))
	used := timeutil.DaysBetween(periodStart, timeutil.MinDate(asOf, periodEnd))
	if used >= days {
		return one, nil
	}

	return decimal.NewFromInt(int64(used)).Div(decimal.NewFromInt(int64(days))), nil
}
