// Package risk scores tokenized assets for display and pool metrics.
// Scoring is deterministic and side-effect free.
package risk

import "github.com/shopspring/decimal"

// Asset type classifications.
const (
	TypeRealEstate = "real_estate"
	TypeBond       = "bond"
	TypeCommodity  = "commodity"
	TypeInvoice    = "invoice"
	TypeEquity     = "equity"
	TypeOther      = "other"
)

const baseScore = 50.0

// typeCoefficients scale the base score by asset class. Real estate is
// the least risky; unclassified assets carry the highest coefficient.
var typeCoefficients = map[string]float64{
	TypeRealEstate: 0.8,
	TypeBond:       0.85,
	TypeCommodity:  0.9,
	TypeInvoice:    1.0,
	TypeEquity:     1.1,
	TypeOther:      1.3,
}

// Score maps (assetType, expectedReturnPct) to a bounded risk score in
// [0, 100]. Higher expected returns push the score up: above 15% scales
// by 1.4, above 10% by 1.2; below 5% scales down by 0.85.
func Score(assetType string, expectedReturnPct decimal.Decimal) int {
	coeff, ok := typeCoefficients[assetType]
	if !ok {
		coeff = typeCoefficients[TypeOther]
	}

	score := baseScore * coeff

	ret := expectedReturnPct.InexactFloat64()
	switch {
	case ret > 15:
		score *= 1.4
	case ret > 10:
		score *= 1.2
	case ret < 5:
		score *= 0.85
	}

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return int(score)
}
