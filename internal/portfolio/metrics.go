package portfolio

import (
	"math"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// SortinoRatio computes (mean - riskFree) / downside deviation, where
// the deviation counts only returns below the per-period risk-free
// rate. A series with no downside has zero deviation; the ratio is
// then defined as 0.0 rather than infinity.
func SortinoRatio(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sumSquares := 0.0
	downside := 0
	for _, r := range returns {
		if r < riskFree {
			d := r - riskFree
			sumSquares += d * d
			downside++
		}
	}
	if downside == 0 {
		return 0
	}

	downsideDev := math.Sqrt(sumSquares / float64(len(returns)))
	if downsideDev <= 0 {
		return 0
	}
	return (mean(returns) - riskFree) / downsideDev
}

// MaxDrawdown returns the largest peak-to-trough relative decline of a
// cumulative value series. Empty or monotonically non-decreasing input
// yields 0.
func MaxDrawdown(cumulative []float64) float64 {
	if len(cumulative) == 0 {
		return 0
	}

	maxDD := 0.0
	peak := cumulative[0]
	for _, v := range cumulative {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// TurnoverRate is half the L1 distance between two allocations: the
// fraction of portfolio value that must trade to move between them.
// Vectors of unequal length treat missing entries as zero weight.
func TurnoverRate(old, new []float64) float64 {
	n := len(old)
	if len(new) > n {
		n = len(new)
	}

	total := 0.0
	for i := 0; i < n; i++ {
		var o, w float64
		if i < len(old) {
			o = old[i]
		}
		if i < len(new) {
			w = new[i]
		}
		total += math.Abs(o - w)
	}
	return total / 2.0
}

// CalculateMetrics assembles the expected performance metrics for a
// target allocation. DailyReturn stays raw per-period; only the Calmar
// display field annualizes.
func (e *Engine) CalculateMetrics(
	weights, expectedReturns []float64,
	cov [][]float64,
	dailyReturns map[string][]float64,
	tokens []types.TokenInfo,
	currentWeights []float64,
) types.PortfolioMetrics {
	dailyRiskFree := e.cfg.RiskFreeRate / 365.0

	dailyReturn := PortfolioReturn(weights, expectedReturns)
	volatility := PortfolioStdDev(weights, cov)

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (dailyReturn - dailyRiskFree) / volatility
	}

	history := portfolioSeries(weights, tokens, dailyReturns)
	sortino := SortinoRatio(history, dailyRiskFree)

	cumulative := make([]float64, len(history))
	value := 1.0
	for i, r := range history {
		value *= 1 + r
		cumulative[i] = value
	}
	maxDD := MaxDrawdown(cumulative)

	calmar := 0.0
	if maxDD > 0 {
		calmar = (dailyReturn * 365.0) / maxDD
	}

	return types.PortfolioMetrics{
		DailyReturn:  dailyReturn,
		Volatility:   volatility,
		SharpeRatio:  sharpe,
		SortinoRatio: sortino,
		MaxDrawdown:  maxDD,
		CalmarRatio:  calmar,
		TurnoverRate: TurnoverRate(currentWeights, weights),
	}
}

// portfolioSeries builds the weighted historical return series of the
// allocation, tail-aligning each token's series to the shortest one so
// the most recent observations line up.
func portfolioSeries(weights []float64, tokens []types.TokenInfo, dailyReturns map[string][]float64) []float64 {
	length := -1
	for i, token := range tokens {
		if i >= len(weights) || weights[i] == 0 {
			continue
		}
		series := dailyReturns[token.Symbol]
		if len(series) == 0 {
			continue
		}
		if length < 0 || len(series) < length {
			length = len(series)
		}
	}
	if length <= 0 {
		return nil
	}

	combined := make([]float64, length)
	for i, token := range tokens {
		if i >= len(weights) || weights[i] == 0 {
			continue
		}
		series := dailyReturns[token.Symbol]
		if len(series) == 0 {
			continue
		}
		tail := series[len(series)-length:]
		for k := 0; k < length; k++ {
			combined[k] += weights[i] * tail[k]
		}
	}
	return combined
}
