// Package types provides shared type definitions for the portfolio backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenInfo describes a candidate token in the optimization universe.
type TokenInfo struct {
	Symbol               string          `json:"symbol"`
	Price                decimal.Decimal `json:"price"`    // quote units per token
	Decimals             uint32          `json:"decimals"` // smallest-unit exponent
	HistoricalVolatility float64         `json:"historicalVolatility"`
	LiquidityScore       *float64        `json:"liquidityScore,omitempty"` // 0..1
	MarketCap            *float64        `json:"marketCap,omitempty"`      // quote-denominated
}

// PricePoint is a single observation in a token's price series.
type PricePoint struct {
	Timestamp time.Time        `json:"timestamp"`
	Price     decimal.Decimal  `json:"price"`
	Volume    *decimal.Decimal `json:"volume,omitempty"`
}

// PriceHistory is a price series for a token against a quote token.
// Callers may pass unsorted points; consumers sort by timestamp.
type PriceHistory struct {
	Token      string       `json:"token"`
	QuoteToken string       `json:"quoteToken"`
	Prices     []PricePoint `json:"prices"`
}

// PortfolioData is the full per-cycle input to the optimizer.
type PortfolioData struct {
	Tokens               []TokenInfo        `json:"tokens"`
	Predictions          map[string]float64 `json:"predictions"` // token -> predicted price
	HistoricalPrices     []PriceHistory     `json:"historicalPrices"`
	PredictionConfidence *float64           `json:"predictionConfidence,omitempty"` // 0..1
}

// WalletInfo is the wallet snapshot the rebalancer compares against.
type WalletInfo struct {
	Holdings    map[string]decimal.Decimal `json:"holdings"` // token -> amount in smallest units
	TotalValue  float64                    `json:"totalValue"`
	CashBalance float64                    `json:"cashBalance"`
}

// PortfolioWeights is a target allocation with its realized score.
type PortfolioWeights struct {
	Weights     map[string]float64 `json:"weights"`
	SharpeRatio float64            `json:"sharpeRatio"`
}

// PortfolioMetrics summarizes expected portfolio performance.
// DailyReturn is the raw per-period return; annualization is left to
// presentation layers because compounding negative daily returns
// produces impossible (<-100%) figures.
type PortfolioMetrics struct {
	DailyReturn  float64 `json:"dailyReturn"`
	Volatility   float64 `json:"volatility"`
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	MaxDrawdown  float64 `json:"maxDrawdown"`
	CalmarRatio  float64 `json:"calmarRatio"`
	TurnoverRate float64 `json:"turnoverRate"`
}

// ActionType discriminates TradingAction variants.
type ActionType string

const (
	ActionHold           ActionType = "hold"
	ActionAddPosition    ActionType = "add_position"
	ActionReducePosition ActionType = "reduce_position"
	ActionRebalance      ActionType = "rebalance"
	ActionSell           ActionType = "sell"
	ActionSwitch         ActionType = "switch"
)

// TradingAction is a tagged union of concrete portfolio moves. Only the
// fields implied by Type are populated; downstream executors switch
// exhaustively on Type.
type TradingAction struct {
	Type ActionType `json:"type"`

	// AddPosition / ReducePosition / Sell
	Token  string  `json:"token,omitempty"`
	Weight float64 `json:"weight,omitempty"` // target weight (add) or fraction of current holding (reduce)

	// Rebalance
	TargetWeights map[string]float64 `json:"targetWeights,omitempty"`

	// Sell
	Target string `json:"target,omitempty"` // token receiving the proceeds

	// Switch
	FromToken string `json:"fromToken,omitempty"`
	ToToken   string `json:"toToken,omitempty"`

	// Estimated quote-denominated trade size, informational for the
	// executor's own fee/slippage model.
	EstimatedAmount *decimal.Decimal `json:"estimatedAmount,omitempty"`
}

// Hold returns a no-op action.
func Hold() TradingAction {
	return TradingAction{Type: ActionHold}
}

// AddPosition builds an action increasing a token to a target weight.
func AddPosition(token string, weight float64) TradingAction {
	return TradingAction{Type: ActionAddPosition, Token: token, Weight: weight}
}

// ReducePosition builds an action selling a fraction of a current holding.
func ReducePosition(token string, fraction float64) TradingAction {
	return TradingAction{Type: ActionReducePosition, Token: token, Weight: fraction}
}

// Rebalance builds the aggregate target-allocation action.
func Rebalance(targets map[string]float64) TradingAction {
	return TradingAction{Type: ActionRebalance, TargetWeights: targets}
}

// Sell builds an action liquidating a token into a target token.
func Sell(token, target string) TradingAction {
	return TradingAction{Type: ActionSell, Token: token, Target: target}
}

// Switch builds an action moving a full position between tokens.
func Switch(from, to string) TradingAction {
	return TradingAction{Type: ActionSwitch, FromToken: from, ToToken: to}
}

// PortfolioReport is the output of one optimization cycle.
type PortfolioReport struct {
	ID               string           `json:"id"`
	GeneratedAt      time.Time        `json:"generatedAt"`
	OptimalWeights   PortfolioWeights `json:"optimalWeights"`
	RebalanceNeeded  bool             `json:"rebalanceNeeded"`
	Actions          []TradingAction  `json:"actions"`
	ExpectedMetrics  PortfolioMetrics `json:"expectedMetrics"`
	WeightsSanitized bool             `json:"weightsSanitized"` // set when validation zeroed bad entries
}

// OptimizeRequest is the API payload for one optimization run.
type OptimizeRequest struct {
	Wallet             WalletInfo    `json:"wallet"`
	Portfolio          PortfolioData `json:"portfolio"`
	RebalanceThreshold *float64      `json:"rebalanceThreshold,omitempty"`
}
