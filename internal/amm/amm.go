// Package amm implements constant-product bookkeeping for a pool's
// two-sided liquidity.
//
// LP share issuance follows the standard constant-product AMM convention:
//   - First deposit into an empty pool mints sqrt(asset * quote) shares
//     (geometric-mean bootstrap).
//   - Subsequent deposits mint outstanding * min(asset/reserveAsset,
//     quote/reserveQuote) — the scarcer side caps the mint, so a one-sided
//     top-up cannot claim a disproportionate slice of the reserves.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The square root goes through float64 and is immediately converted back
// to decimal at a fixed scale.
package amm

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientAmount is returned when a deposit amount is zero or
	// negative.
	ErrInsufficientAmount = errors.New("amm: deposit amounts must be positive")

	// ErrNoLiquidity is returned when redeeming or quoting against a pool
	// with no outstanding LP tokens or empty reserves.
	ErrNoLiquidity = errors.New("amm: pool has no liquidity")

	// ErrInvalidFee is returned when the fee fraction is outside [0, 1).
	ErrInvalidFee = errors.New("amm: fee must be in [0, 1)")

	// ShareScale is the number of decimal places for LP share rounding.
	ShareScale int32 = 8
)

// BootstrapShares computes the LP tokens minted for the first deposit
// into an empty pool: sqrt(assetAmount * quoteAmount).
func BootstrapShares(assetAmount, quoteAmount decimal.Decimal) (decimal.Decimal, error) {
	if assetAmount.LessThanOrEqual(decimal.Zero) || quoteAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientAmount
	}
	product := assetAmount.Mul(quoteAmount)
	root := math.Sqrt(product.InexactFloat64())
	return decimal.NewFromFloat(root).Round(ShareScale), nil
}

// MintShares computes the LP tokens minted for a deposit into a pool with
// existing reserves:
//
//	minted = outstanding * min(asset/reserveAsset, quote/reserveQuote)
//
// The minimum of the two proportional shares prevents minting against the
// more abundant side of an imbalanced deposit.
func MintShares(assetAmount, quoteAmount, reserveAsset, reserveQuote, outstanding decimal.Decimal) (decimal.Decimal, error) {
	if assetAmount.LessThanOrEqual(decimal.Zero) || quoteAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientAmount
	}
	if reserveAsset.LessThanOrEqual(decimal.Zero) || reserveQuote.LessThanOrEqual(decimal.Zero) || outstanding.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrNoLiquidity
	}

	assetRatio := assetAmount.Div(reserveAsset)
	quoteRatio := quoteAmount.Div(reserveQuote)

	ratio := assetRatio
	if quoteRatio.LessThan(ratio) {
		ratio = quoteRatio
	}
	return outstanding.Mul(ratio).Round(ShareScale), nil
}

// Redeem computes the pro-rata reserve amounts returned for burning
// lpTokens against the current reserves:
//
//	asset = reserveAsset * lpTokens / outstanding
//	quote = reserveQuote * lpTokens / outstanding
func Redeem(lpTokens, reserveAsset, reserveQuote, outstanding decimal.Decimal) (asset, quote decimal.Decimal, err error) {
	if lpTokens.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrInsufficientAmount
	}
	if outstanding.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, ErrNoLiquidity
	}
	share := lpTokens.Div(outstanding)
	asset = reserveAsset.Mul(share).Round(ShareScale)
	quote = reserveQuote.Mul(share).Round(ShareScale)
	return asset, quote, nil
}

// SwapQuote computes the quote-side output for swapping assetIn into the
// pool under the constant-product invariant, after charging the fee on
// the input:
//
//	effectiveIn = assetIn * (1 - fee)
//	quoteOut    = reserveQuote - (reserveAsset * reserveQuote) / (reserveAsset + effectiveIn)
//
// The returned amount is what a trader would receive; reserves are not
// mutated here.
func SwapQuote(assetIn, reserveAsset, reserveQuote, fee decimal.Decimal) (decimal.Decimal, error) {
	if assetIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientAmount
	}
	if reserveAsset.LessThanOrEqual(decimal.Zero) || reserveQuote.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrNoLiquidity
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidFee
	}

	effectiveIn := assetIn.Mul(decimal.NewFromInt(1).Sub(fee))
	k := reserveAsset.Mul(reserveQuote)
	newReserveQuote := k.Div(reserveAsset.Add(effectiveIn))
	return reserveQuote.Sub(newReserveQuote).Round(ShareScale), nil
}

// SpotPrice returns the instantaneous quote-per-asset price implied by
// the reserves.
func SpotPrice(reserveAsset, reserveQuote decimal.Decimal) (decimal.Decimal, error) {
	if reserveAsset.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrNoLiquidity
	}
	return reserveQuote.Div(reserveAsset).Round(ShareScale), nil
}
