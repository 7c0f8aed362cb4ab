package portfolio

import (
	"math"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/workers"
)

// frontierCandidate is one evaluated point of the Sharpe grid search.
type frontierCandidate struct {
	weights []float64
	sharpe  float64
	valid   bool
}

// MaximizeSharpeRatio searches the weight simplex for the allocation
// maximizing (w·r - rf/365) / sqrt(wᵀΣw). It scans a fixed grid of
// target returns between the minimum and maximum expected return,
// solving each via the efficient-frontier solver. Grid points are
// evaluated in parallel but folded in index order, so repeated calls
// on identical inputs yield bit-identical weights.
//
// Edge cases: a single asset gets weight 1.0 outright, and a universe
// where every expected return is equal gets exact 1/n weights, since
// no allocation can then improve the numerator.
func (e *Engine) MaximizeSharpeRatio(returns []float64, cov [][]float64) []float64 {
	n := len(returns)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{1.0}
	}

	minReturn, maxReturn := returns[0], returns[0]
	for _, r := range returns[1:] {
		if r < minReturn {
			minReturn = r
		}
		if r > maxReturn {
			maxReturn = r
		}
	}
	if minReturn == maxReturn {
		return equalWeights(n)
	}

	step := (maxReturn - minReturn) / float64(frontierGridPoints-1)
	dailyRiskFree := e.cfg.RiskFreeRate / 365.0

	candidates := workers.Map(e.pool, frontierGridPoints, func(i int) frontierCandidate {
		target := minReturn + step*float64(i)
		weights := e.CalculateEfficientFrontier(returns, cov, target)

		std := PortfolioStdDev(weights, cov)
		if std <= 0 {
			return frontierCandidate{weights: weights}
		}
		return frontierCandidate{
			weights: weights,
			sharpe:  (PortfolioReturn(weights, returns) - dailyRiskFree) / std,
			valid:   true,
		}
	})

	best := workers.Fold(candidates, frontierCandidate{sharpe: math.Inf(-1)},
		func(acc frontierCandidate, _ int, c frontierCandidate) frontierCandidate {
			if c.valid && c.sharpe > acc.sharpe {
				return c
			}
			return acc
		})

	if best.weights == nil {
		e.logger.Warn("no valid frontier point, defaulting to equal weights",
			zap.Int("assets", n))
		return equalWeights(n)
	}
	return best.weights
}

// CalculateEfficientFrontier iterates toward a minimum-variance weight
// vector whose expected return approaches the target. Each step moves
// weights along the return gap (rate 0.1) while descending the risk
// gradient 2Σw (rate 0.01), then clamps to the non-negative simplex.
// Convergence is a max weight delta below the tolerance, with a hard
// iteration cap so pathological inputs cannot hang the caller.
func (e *Engine) CalculateEfficientFrontier(returns []float64, cov [][]float64, targetReturn float64) []float64 {
	n := len(returns)
	if n == 0 {
		return nil
	}

	weights := equalWeights(n)
	next := make([]float64, n)

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		returnGap := targetReturn - PortfolioReturn(weights, returns)

		for i := 0; i < n; i++ {
			riskGradient := 0.0
			for j := 0; j < n; j++ {
				riskGradient += 2 * cov[i][j] * weights[j]
			}
			w := weights[i] + 0.1*returnGap*returns[i] - 0.01*riskGradient
			if w < 0 {
				w = 0
			}
			next[i] = w
		}
		normalize(next)

		maxDelta := 0.0
		for i := 0; i < n; i++ {
			if d := math.Abs(next[i] - weights[i]); d > maxDelta {
				maxDelta = d
			}
		}
		copy(weights, next)
		if maxDelta < WeightTolerance {
			break
		}
	}
	return weights
}

// ApplyRiskParity nudges weights toward equal marginal risk
// contribution. Each pass scales every weight by target/actual risk
// contribution, clamped to [0.5, 2.0] per step to keep the update
// stable, then renormalizes.
func (e *Engine) ApplyRiskParity(weights []float64, cov [][]float64) []float64 {
	n := len(weights)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	copy(out, weights)
	if n == 1 {
		out[0] = 1.0
		return out
	}

	marginal := make([]float64, n)
	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		totalRisk := 0.0
		for i := 0; i < n; i++ {
			m := 0.0
			for j := 0; j < n; j++ {
				m += cov[i][j] * out[j]
			}
			marginal[i] = out[i] * m
			totalRisk += marginal[i]
		}
		if totalRisk <= 0 {
			break
		}

		target := totalRisk / float64(n)
		maxDelta := 0.0
		for i := 0; i < n; i++ {
			if marginal[i] <= 0 {
				continue
			}
			adjustment := target / marginal[i]
			if adjustment < 0.5 {
				adjustment = 0.5
			} else if adjustment > 2.0 {
				adjustment = 2.0
			}
			updated := out[i] * adjustment
			if d := math.Abs(updated - out[i]); d > maxDelta {
				maxDelta = d
			}
			out[i] = updated
		}
		normalize(out)
		if maxDelta < WeightTolerance {
			break
		}
	}
	return out
}

// BlendAlpha maps the dynamic risk adjustment (and optional prediction
// confidence) to the Sharpe share of the Sharpe/risk-parity blend.
// Sharpe always dominates: alpha stays within [0.7, 0.9], and
// confidence only modulates how far toward risk parity the blend
// leans.
func (e *Engine) BlendAlpha(riskAdjustment float64, confidence *float64) float64 {
	alphaVol := ((riskAdjustment-0.7)/(1.4-0.7))*(0.9-0.7) + 0.7
	alphaVol = clamp(alphaVol, 0.7, 0.9)

	if confidence == nil {
		return alphaVol
	}
	alpha := PredictionAlphaFloor + (alphaVol-PredictionAlphaFloor)*(*confidence)
	return clamp(alpha, PredictionAlphaFloor, 0.9)
}

// BlendWeights combines Sharpe-optimal and risk-parity weights:
// alpha·sharpe + (1-alpha)·riskParity per token.
func BlendWeights(sharpe, riskParity []float64, alpha float64) []float64 {
	blended := make([]float64, len(sharpe))
	for i := range sharpe {
		blended[i] = alpha*sharpe[i] + (1-alpha)*riskParity[i]
	}
	return blended
}

// ApplyConstraints clamps weights to [0, MaxPositionSize], zeroes dust
// below MinPositionSize, and renormalizes. Clamping and normalization
// interact, so the pass repeats until the sum converges to 1 within
// tolerance. When the cap and the sum invariant conflict (fewer
// effective assets than 1/MaxPositionSize), the sum invariant wins and
// the final normalization is applied uncapped.
func (e *Engine) ApplyConstraints(weights []float64) []float64 {
	n := len(weights)
	if n == 0 {
		return nil
	}

	out := make([]float64, n)
	copy(out, weights)

	for i := range out {
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) || out[i] < 0 {
			out[i] = 0
		}
		if out[i] < e.cfg.MinPositionSize {
			out[i] = 0
		}
		if out[i] > e.cfg.MaxPositionSize {
			out[i] = e.cfg.MaxPositionSize
		}
	}

	for pass := 0; pass < constraintPasses; pass++ {
		sum := 0.0
		for _, w := range out {
			sum += w
		}
		if sum <= 0 {
			copy(out, equalWeights(n))
		} else {
			for i := range out {
				out[i] /= sum
			}
		}

		// Move over-cap mass onto the uncapped weights; rescaling them
		// can push another weight over the cap, hence the outer loop.
		overflow := 0.0
		free := 0.0
		for i := range out {
			if out[i] > e.cfg.MaxPositionSize {
				overflow += out[i] - e.cfg.MaxPositionSize
				out[i] = e.cfg.MaxPositionSize
			} else {
				free += out[i]
			}
		}
		if overflow < WeightTolerance {
			return out
		}
		if free <= 0 {
			break
		}
		scale := (free + overflow) / free
		for i := range out {
			if out[i] < e.cfg.MaxPositionSize {
				out[i] *= scale
			}
		}
	}

	// Constraints conflict; keep sum == 1 even if a weight exceeds the cap.
	normalize(out)
	return out
}

func equalWeights(n int) []float64 {
	weights := make([]float64, n)
	w := 1.0 / float64(n)
	for i := range weights {
		weights[i] = w
	}
	return weights
}

// normalize scales weights to sum 1; an all-zero vector becomes equal
// weights so downstream math never divides by zero.
func normalize(weights []float64) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		copy(weights, equalWeights(len(weights)))
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
