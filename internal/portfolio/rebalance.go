package portfolio

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// CalculateCurrentWeights derives the wallet's present allocation over
// the token universe, in token order. Holdings are stored in smallest
// units, so each is converted through the raw rate
// (10^decimals per quote unit) before dividing by total value. Tokens
// absent from the wallet, or with a non-positive price, get weight 0.
func CalculateCurrentWeights(tokens []types.TokenInfo, wallet types.WalletInfo) []float64 {
	weights := make([]float64, len(tokens))
	if wallet.TotalValue <= 0 {
		return weights
	}

	for i, token := range tokens {
		holding, ok := wallet.Holdings[token.Symbol]
		if !ok || holding.Sign() <= 0 {
			continue
		}
		if token.Price.Sign() <= 0 {
			continue
		}

		// rawRate = 10^decimals / price, in smallest units per quote unit.
		rawRate := decimal.New(1, int32(token.Decimals)).Div(token.Price)
		if rawRate.Sign() <= 0 {
			continue
		}
		quoteValue := holding.Div(rawRate)
		weights[i] = quoteValue.InexactFloat64() / wallet.TotalValue
	}
	return weights
}

// NeedsRebalancing reports whether the current allocation has drifted
// beyond the threshold on any token, or whether the token set itself
// changed (differing vector lengths).
func NeedsRebalancing(current, target []float64, threshold float64) bool {
	if len(current) != len(target) {
		return true
	}
	for i := range current {
		if math.Abs(current[i]-target[i]) > threshold {
			return true
		}
	}
	return false
}

// GenerateRebalanceActions emits per-token trade actions for every
// weight drifted beyond the threshold, plus one aggregate Rebalance
// action carrying the full target allocation. Additions carry the
// target weight; reductions carry the fraction of the current holding
// to sell. Each action estimates its quote-denominated trade size from
// the wallet's total value.
func GenerateRebalanceActions(
	tokens []types.TokenInfo,
	current, target []float64,
	threshold float64,
	wallet types.WalletInfo,
) []types.TradingAction {
	actions := make([]types.TradingAction, 0, len(tokens)+1)
	totalValue := decimal.NewFromFloat(wallet.TotalValue)

	for i, token := range tokens {
		if i >= len(current) || i >= len(target) {
			break
		}
		delta := target[i] - current[i]
		if math.Abs(delta) <= threshold {
			continue
		}

		amount := decimal.NewFromFloat(math.Abs(delta)).Mul(totalValue)
		if delta > 0 {
			action := types.AddPosition(token.Symbol, target[i])
			action.EstimatedAmount = &amount
			actions = append(actions, action)
		} else if current[i] > 0 {
			action := types.ReducePosition(token.Symbol, math.Abs(delta)/current[i])
			action.EstimatedAmount = &amount
			actions = append(actions, action)
		}
	}

	targetMap := make(map[string]float64, len(tokens))
	for i, token := range tokens {
		if i < len(target) {
			targetMap[token.Symbol] = target[i]
		}
	}
	actions = append(actions, types.Rebalance(targetMap))

	return actions
}

// PlanExit builds the action sequence liquidating a token into a
// target token, used by executors winding a position down.
func PlanExit(token, target string) []types.TradingAction {
	return []types.TradingAction{types.Sell(token, target)}
}

// PlanSwitch builds the action moving a full position between tokens.
func PlanSwitch(from, to string) []types.TradingAction {
	return []types.TradingAction{types.Switch(from, to)}
}
