package portfolio

import (
	"sort"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// tokenScore pairs a candidate with its risk-adjusted score. The input
// index is kept as a stable tie-break so selection is deterministic.
type tokenScore struct {
	index int
	token types.TokenInfo
	score float64
}

// SelectOptimalTokens filters the candidate universe down to at most
// maxTokens diversified tokens. Candidates are scored on a Sharpe-like
// ratio (expected return over realized volatility) and gated on
// liquidity score and market cap. If the gates leave no scoreable
// candidate, up to maxTokens of the original input are returned in
// input order; an empty selection must never starve the optimizer when
// tokens exist.
func (e *Engine) SelectOptimalTokens(
	tokens []types.TokenInfo,
	predictions map[string]float64,
	histories []types.PriceHistory,
	maxTokens int,
) []types.TokenInfo {
	if maxTokens <= 0 || len(tokens) == 0 {
		return nil
	}

	returns := DailyReturns(histories)
	expected := ExpectedReturns(tokens, predictions)

	candidates := make([]tokenScore, 0, len(tokens))
	for i, token := range tokens {
		if !e.passesGates(token) {
			continue
		}
		candidates = append(candidates, tokenScore{
			index: i,
			token: token,
			score: e.scoreToken(token, expected[i], returns[token.Symbol]),
		})
	}

	if len(candidates) == 0 {
		e.logger.Warn("no tokens passed selection gates, falling back to input order",
			zap.Int("tokens", len(tokens)))
		n := len(tokens)
		if n > maxTokens {
			n = maxTokens
		}
		selected := make([]types.TokenInfo, n)
		copy(selected, tokens[:n])
		return selected
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].index < candidates[j].index
	})

	return e.selectUncorrelated(candidates, returns, maxTokens)
}

// passesGates applies the liquidity and market-cap filters. A missing
// field fails its gate; the caller's fallback handles universes where
// no candidate reports the data.
func (e *Engine) passesGates(token types.TokenInfo) bool {
	if token.LiquidityScore == nil || *token.LiquidityScore < e.cfg.MinLiquidityScore {
		return false
	}
	if token.MarketCap == nil || *token.MarketCap < e.cfg.MinMarketCap {
		return false
	}
	return true
}

// scoreToken computes the Sharpe-like selection score. Realized
// volatility from the return series is preferred; the reported
// historical volatility is the fallback, and a token with no usable
// volatility is ranked by raw expected return.
func (e *Engine) scoreToken(token types.TokenInfo, expectedReturn float64, series []float64) float64 {
	vol := StdDev(series)
	if vol <= 0 {
		vol = token.HistoricalVolatility
	}
	if vol <= 0 {
		return expectedReturn
	}
	return expectedReturn / vol
}

// selectUncorrelated greedily walks candidates by score descending,
// skipping any candidate whose pairwise return correlation with an
// already-selected token exceeds the configured ceiling. Correlations
// are cached per unordered pair since the greedy loop revisits them.
func (e *Engine) selectUncorrelated(
	candidates []tokenScore,
	returns map[string][]float64,
	maxTokens int,
) []types.TokenInfo {
	selected := make([]types.TokenInfo, 0, maxTokens)
	cache := make(map[[2]int]float64)

	for _, candidate := range candidates {
		if len(selected) >= maxTokens {
			break
		}
		ok := true
		for _, held := range selected {
			corr := e.pairCorrelation(cache, candidate, held, candidates, returns)
			if corr > e.cfg.MaxCorrelation {
				ok = false
				break
			}
		}
		if ok {
			selected = append(selected, candidate.token)
		}
	}
	return selected
}

func (e *Engine) pairCorrelation(
	cache map[[2]int]float64,
	candidate tokenScore,
	held types.TokenInfo,
	candidates []tokenScore,
	returns map[string][]float64,
) float64 {
	heldIndex := -1
	for _, c := range candidates {
		if c.token.Symbol == held.Symbol {
			heldIndex = c.index
			break
		}
	}

	key := [2]int{candidate.index, heldIndex}
	if key[0] > key[1] {
		key[0], key[1] = key[1], key[0]
	}
	if corr, hit := cache[key]; hit {
		return corr
	}

	corr := Correlation(returns[candidate.token.Symbol], returns[held.Symbol])
	cache[key] = corr
	return corr
}
