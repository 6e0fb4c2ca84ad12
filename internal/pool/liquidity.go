package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/amm"
	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/model"
)

// LiquidityRequest is the JSON body for POST /pools/{poolID}/liquidity
// and DELETE of the same path (LPTokenAmount only).
type LiquidityRequest struct {
	UserAddress   string          `json:"user_address"`
	AssetAmount   decimal.Decimal `json:"asset_amount"`
	QuoteAmount   decimal.Decimal `json:"quote_amount"`
	LPTokenAmount decimal.Decimal `json:"lp_token_amount"`
}

// LiquidityReceipt is returned from a successful deposit.
type LiquidityReceipt struct {
	PoolID         string          `json:"pool_id"`
	UserAddress    string          `json:"user_address"`
	LPTokensIssued decimal.Decimal `json:"lp_tokens_issued"`
	AssetAmount    decimal.Decimal `json:"asset_amount"`
	QuoteAmount    decimal.Decimal `json:"quote_amount"`
	PoolShare      decimal.Decimal `json:"pool_share"` // fraction of outstanding LP
}

// RemoveLiquidityResult is returned from a successful redemption.
type RemoveLiquidityResult struct {
	PoolID         string          `json:"pool_id"`
	UserAddress    string          `json:"user_address"`
	LPTokensBurned decimal.Decimal `json:"lp_tokens_burned"`
	AssetAmount    decimal.Decimal `json:"asset_amount"`
	QuoteAmount    decimal.Decimal `json:"quote_amount"`
}

// AddLiquidity deposits a two-sided amount into the pool and mints LP
// tokens. The first deposit into an empty pool uses the geometric-mean
// bootstrap; later deposits mint at the scarcer side's ratio.
func (s *Service) AddLiquidity(ctx context.Context, poolID, userAddress string, assetAmount, quoteAmount decimal.Decimal) (*LiquidityReceipt, error) {
	unlock := s.locks.lock(poolID)
	defer unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PoolActive {
		return nil, ErrPoolClosed
	}

	var issued decimal.Decimal
	if p.LPTokensOutstanding.IsZero() {
		issued, err = amm.BootstrapShares(assetAmount, quoteAmount)
	} else {
		issued, err = amm.MintShares(assetAmount, quoteAmount, p.ReserveAsset, p.ReserveQuote, p.LPTokensOutstanding)
	}
	if err != nil {
		return nil, err
	}

	pos, isNew, err := s.positionForUpdate(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}
	if pos.Liquidity == nil {
		pos.Liquidity = &model.LiquidityPosition{OpenedAt: s.now()}
	}
	pos.Liquidity.LPTokens = pos.Liquidity.LPTokens.Add(issued)
	pos.Liquidity.AssetAmount = pos.Liquidity.AssetAmount.Add(assetAmount)
	pos.Liquidity.QuoteAmount = pos.Liquidity.QuoteAmount.Add(quoteAmount)

	p.ReserveAsset = p.ReserveAsset.Add(assetAmount)
	p.ReserveQuote = p.ReserveQuote.Add(quoteAmount)
	p.LPTokensOutstanding = p.LPTokensOutstanding.Add(issued)

	if err := s.savePosition(ctx, p, pos, isNew); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.LiquidityOps.WithLabelValues("add").Inc()

	slog.Info("liquidity added",
		"pool", poolID,
		"user", userAddress,
		"asset", assetAmount.String(),
		"quote", quoteAmount.String(),
		"lp_issued", issued.String(),
	)

	s.broadcast(Event{
		Type:        "liquidity_added",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      issued.String(),
	})

	return &LiquidityReceipt{
		PoolID:         poolID,
		UserAddress:    userAddress,
		LPTokensIssued: issued,
		AssetAmount:    assetAmount,
		QuoteAmount:    quoteAmount,
		PoolShare:      issued.Div(p.LPTokensOutstanding).Round(amm.ShareScale),
	}, nil
}

// RemoveLiquidity burns LP tokens for a pro-rata share of the reserves.
// LP tokens committed to a farm must be withdrawn from the farm first.
// Allowed on closed pools.
func (s *Service) RemoveLiquidity(ctx context.Context, poolID, userAddress string, lpTokenAmount decimal.Decimal) (*RemoveLiquidityResult, error) {
	unlock := s.locks.lock(poolID)
	defer unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	pos, _, err := s.positionForUpdate(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}
	if pos.Liquidity == nil {
		return nil, ErrNoPosition
	}

	available := pos.Liquidity.LPTokens
	if pos.Farming != nil {
		available = available.Sub(pos.Farming.LPTokensCommitted)
	}
	if lpTokenAmount.GreaterThan(available) {
		return nil, ErrInsufficientBalance
	}

	assetOut, quoteOut, err := amm.Redeem(lpTokenAmount, p.ReserveAsset, p.ReserveQuote, p.LPTokensOutstanding)
	if err != nil {
		return nil, err
	}

	// Reduce the position's recorded deposit pro-rata with the burn.
	share := lpTokenAmount.Div(pos.Liquidity.LPTokens)
	pos.Liquidity.AssetAmount = pos.Liquidity.AssetAmount.Sub(pos.Liquidity.AssetAmount.Mul(share)).Round(amm.ShareScale)
	pos.Liquidity.QuoteAmount = pos.Liquidity.QuoteAmount.Sub(pos.Liquidity.QuoteAmount.Mul(share)).Round(amm.ShareScale)
	pos.Liquidity.LPTokens = pos.Liquidity.LPTokens.Sub(lpTokenAmount)
	if pos.Liquidity.LPTokens.IsZero() {
		pos.Liquidity = nil
	}

	p.ReserveAsset = p.ReserveAsset.Sub(assetOut)
	p.ReserveQuote = p.ReserveQuote.Sub(quoteOut)
	p.LPTokensOutstanding = p.LPTokensOutstanding.Sub(lpTokenAmount)

	if err := s.savePosition(ctx, p, pos, false); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.LiquidityOps.WithLabelValues("remove").Inc()

	slog.Info("liquidity removed",
		"pool", poolID,
		"user", userAddress,
		"lp_burned", lpTokenAmount.String(),
		"asset_out", assetOut.String(),
		"quote_out", quoteOut.String(),
	)

	s.broadcast(Event{
		Type:        "liquidity_removed",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      lpTokenAmount.String(),
	})

	return &RemoveLiquidityResult{
		PoolID:         poolID,
		UserAddress:    userAddress,
		LPTokensBurned: lpTokenAmount,
		AssetAmount:    assetOut,
		QuoteAmount:    quoteOut,
	}, nil
}

// --- HTTP Handlers ---

// HandleAddLiquidity handles POST /api/v1/pools/{poolID}/liquidity.
func (s *Service) HandleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	receipt, err := s.AddLiquidity(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.AssetAmount, req.QuoteAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// HandleRemoveLiquidity handles DELETE /api/v1/pools/{poolID}/liquidity.
func (s *Service) HandleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	result, err := s.RemoveLiquidity(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.LPTokenAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSwapQuote handles GET /api/v1/pools/{poolID}/swap-quote?asset_in=N.
// Read-only constant-product quote; reserves are not mutated.
func (s *Service) HandleSwapQuote(w http.ResponseWriter, r *http.Request) {
	assetIn, err := decimal.NewFromString(r.URL.Query().Get("asset_in"))
	if err != nil {
		writeError(w, "asset_in must be a decimal number", http.StatusBadRequest)
		return
	}

	p, err := s.store.GetPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	quoteOut, err := amm.SwapQuote(assetIn, p.ReserveAsset, p.ReserveQuote, p.Fee)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"asset_in":  assetIn,
		"quote_out": quoteOut,
	})
}
