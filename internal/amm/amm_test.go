package amm

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Bootstrap tests ---

func TestBootstrapShares_GeometricMean(t *testing.T) {
	shares, err := BootstrapShares(d(100), d(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sqrt(100 * 400) = 200
	if !shares.Equal(d(200)) {
		t.Errorf("expected 200 shares, got %s", shares)
	}
}

func TestBootstrapShares_Symmetric(t *testing.T) {
	a, _ := BootstrapShares(d(100), d(400))
	b, _ := BootstrapShares(d(400), d(100))
	if !a.Equal(b) {
		t.Errorf("bootstrap should be symmetric: %s vs %s", a, b)
	}
}

func TestBootstrapShares_ZeroAmount(t *testing.T) {
	if _, err := BootstrapShares(d(0), d(400)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount for zero asset, got %v", err)
	}
	if _, err := BootstrapShares(d(100), d(0)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount for zero quote, got %v", err)
	}
}

func TestBootstrapShares_NegativeAmount(t *testing.T) {
	if _, err := BootstrapShares(d(-10), d(400)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount for negative asset, got %v", err)
	}
}

// --- Mint tests ---

func TestMintShares_Proportional(t *testing.T) {
	// Reserves 100/400 with 200 outstanding; deposit half of each side.
	minted, err := MintShares(d(50), d(200), d(100), d(400), d(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !minted.Equal(d(100)) {
		t.Errorf("expected 100 minted for proportional deposit, got %s", minted)
	}
}

func TestMintShares_ImbalancedUsesScarcerSide(t *testing.T) {
	// Asset side is half the reserve (0.5), quote side only a quarter
	// (0.25). The quote ratio caps the mint.
	minted, err := MintShares(d(50), d(100), d(100), d(400), d(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !minted.Equal(d(50)) {
		t.Errorf("expected 50 minted at scarcer ratio, got %s", minted)
	}
}

func TestMintShares_EmptyPool(t *testing.T) {
	if _, err := MintShares(d(50), d(200), d(0), d(0), d(0)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity for empty pool, got %v", err)
	}
}

func TestMintShares_ZeroDeposit(t *testing.T) {
	if _, err := MintShares(d(0), d(200), d(100), d(400), d(200)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount, got %v", err)
	}
}

// --- Redeem tests ---

func TestRedeem_ProRata(t *testing.T) {
	asset, quote, err := Redeem(d(100), d(100), d(400), d(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !asset.Equal(d(50)) {
		t.Errorf("expected 50 asset out, got %s", asset)
	}
	if !quote.Equal(d(200)) {
		t.Errorf("expected 200 quote out, got %s", quote)
	}
}

func TestRedeem_FullBurn(t *testing.T) {
	asset, quote, err := Redeem(d(200), d(100), d(400), d(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !asset.Equal(d(100)) || !quote.Equal(d(400)) {
		t.Errorf("full burn should drain reserves, got %s/%s", asset, quote)
	}
}

func TestRedeem_ZeroTokens(t *testing.T) {
	if _, _, err := Redeem(d(0), d(100), d(400), d(200)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount, got %v", err)
	}
}

func TestRedeem_NoOutstanding(t *testing.T) {
	if _, _, err := Redeem(d(10), d(100), d(400), d(0)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestRedeem_MintRoundTrip(t *testing.T) {
	// Depositing then burning the minted shares returns the deposit.
	minted, _ := MintShares(d(25), d(100), d(100), d(400), d(200))
	asset, quote, err := Redeem(minted, d(125), d(500), d(200).Add(minted))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tolerance := d(0.000001)
	if asset.Sub(d(25)).Abs().GreaterThan(tolerance) {
		t.Errorf("expected ≈25 asset back, got %s", asset)
	}
	if quote.Sub(d(100)).Abs().GreaterThan(tolerance) {
		t.Errorf("expected ≈100 quote back, got %s", quote)
	}
}

// --- Swap quote tests ---

func TestSwapQuote_ZeroFeeInvariant(t *testing.T) {
	out, err := SwapQuote(d(100), d(100), d(400), d(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// k = 40000; out = 400 - 40000/200 = 200
	if !out.Equal(d(200)) {
		t.Errorf("expected 200 out, got %s", out)
	}

	// (Ra + in) * (Rq - out) must equal k.
	k := d(100).Mul(d(400))
	after := d(100).Add(d(100)).Mul(d(400).Sub(out))
	if !after.Equal(k) {
		t.Errorf("constant product violated: k=%s after=%s", k, after)
	}
}

func TestSwapQuote_FeeReducesOutput(t *testing.T) {
	noFee, _ := SwapQuote(d(100), d(100), d(400), d(0))
	withFee, err := SwapQuote(d(100), d(100), d(400), d(0.003))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withFee.GreaterThanOrEqual(noFee) {
		t.Errorf("fee should reduce output: noFee=%s withFee=%s", noFee, withFee)
	}
}

func TestSwapQuote_OutputBelowReserve(t *testing.T) {
	// Even an enormous input can never drain the quote reserve.
	out, err := SwapQuote(d(1e12), d(100), d(400), d(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GreaterThanOrEqual(d(400)) {
		t.Errorf("output must stay below reserve, got %s", out)
	}
}

func TestSwapQuote_InvalidFee(t *testing.T) {
	if _, err := SwapQuote(d(100), d(100), d(400), d(1)); err != ErrInvalidFee {
		t.Errorf("expected ErrInvalidFee for fee=1, got %v", err)
	}
	if _, err := SwapQuote(d(100), d(100), d(400), d(-0.1)); err != ErrInvalidFee {
		t.Errorf("expected ErrInvalidFee for negative fee, got %v", err)
	}
}

func TestSwapQuote_EmptyReserves(t *testing.T) {
	if _, err := SwapQuote(d(100), d(0), d(0), d(0)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestSwapQuote_ZeroInput(t *testing.T) {
	if _, err := SwapQuote(d(0), d(100), d(400), d(0)); err != ErrInsufficientAmount {
		t.Errorf("expected ErrInsufficientAmount, got %v", err)
	}
}

// --- Spot price ---

func TestSpotPrice(t *testing.T) {
	price, err := SpotPrice(d(100), d(400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(4)) {
		t.Errorf("expected spot price 4, got %s", price)
	}
}

func TestSpotPrice_EmptyPool(t *testing.T) {
	if _, err := SpotPrice(d(0), d(400)); err != ErrNoLiquidity {
		t.Errorf("expected ErrNoLiquidity, got %v", err)
	}
}
