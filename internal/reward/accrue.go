// Package reward implements time-based reward accrual for staking and
// farming positions: a pure accrual function driven by a recurring
// background distributor.
package reward

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places for reward rounding.
const Scale int32 = 8

// secondsPerAccrualYear is 365 accrual days of 86400 seconds.
var secondsPerAccrualYear = decimal.NewFromInt(365 * 86400)

// Accrue computes the reward earned over [lastAt, now) for a position
// with the given reward projection. The projection spreads over 365
// accrual days:
//
//	reward = (expected / 365) * elapsed / oneDay
//
// A non-positive window yields zero, so replaying the same window after
// lastAt has advanced can never double-credit.
func Accrue(expected decimal.Decimal, lastAt, now time.Time) decimal.Decimal {
	if !now.After(lastAt) {
		return decimal.Zero
	}
	if expected.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	elapsedSeconds := decimal.NewFromInt(int64(now.Sub(lastAt) / time.Second))
	return expected.Mul(elapsedSeconds).Div(secondsPerAccrualYear).Round(Scale)
}

// ClampToWindow bounds the accrual instant for a position whose reward
// projection ends at a fixed time (a staking lock). Accrual past the
// window end is not earned.
func ClampToWindow(now, windowEnd time.Time) time.Time {
	if now.After(windowEnd) {
		return windowEnd
	}
	return now
}
