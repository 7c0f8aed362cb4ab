package portfolio_test

import (
	"math"
	"testing"
)

// covFromCorr builds a covariance matrix from per-asset volatilities
// and a uniform pairwise correlation.
func covFromCorr(vols []float64, corr float64) [][]float64 {
	n := len(vols)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				cov[i][j] = vols[i] * vols[i]
			} else {
				cov[i][j] = corr * vols[i] * vols[j]
			}
		}
	}
	return cov
}

func weightSum(weights []float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return sum
}

func TestMaximizeSharpeRatioSingleAsset(t *testing.T) {
	weights := newEngine().MaximizeSharpeRatio([]float64{0.15}, covFromCorr([]float64{0.1}, 0))

	if len(weights) != 1 || weights[0] != 1.0 {
		t.Errorf("Single asset should get weight 1.0, got %v", weights)
	}
}

func TestMaximizeSharpeRatioEqualReturnsEqualWeights(t *testing.T) {
	returns := []float64{0.08, 0.08, 0.08, 0.08}
	cov := covFromCorr([]float64{0.1, 0.2, 0.15, 0.05}, 0.2)

	weights := newEngine().MaximizeSharpeRatio(returns, cov)

	for i, w := range weights {
		if w != 0.25 {
			t.Errorf("Equal returns should yield exact equal weights, got weights[%d]=%v", i, w)
		}
	}
}

func TestMaximizeSharpeRatioDeterministic(t *testing.T) {
	returns := []float64{0.20, 0.12, 0.05, 0.15, -0.02}
	cov := covFromCorr([]float64{0.12, 0.08, 0.05, 0.15, 0.10}, 0.35)

	engine := newEngine()
	first := engine.MaximizeSharpeRatio(returns, cov)
	for run := 0; run < 10; run++ {
		got := engine.MaximizeSharpeRatio(returns, cov)
		if len(got) != len(first) {
			t.Fatalf("Weight vector length changed on run %d", run)
		}
		for i := range got {
			if got[i] != first[i] {
				t.Fatalf("Run %d not bitwise identical at %d: %v vs %v",
					run, i, got[i], first[i])
			}
		}
	}
}

func TestMaximizeSharpeRatioDiversifies(t *testing.T) {
	// Moderate positive cross-correlation: the best allocation tilts
	// to the highest return without going all-in.
	returns := []float64{0.20, 0.12, 0.05}
	cov := covFromCorr([]float64{0.1, 0.1, 0.1}, 0.3)

	weights := newEngine().MaximizeSharpeRatio(returns, cov)

	if !approxEqual(weightSum(weights), 1.0, 1e-6) {
		t.Errorf("Weights should sum to 1, got %f", weightSum(weights))
	}
	if weights[0] <= 0 || weights[0] >= 0.999 {
		t.Errorf("Top-return token should get a non-zero, non-100%% weight, got %f", weights[0])
	}
	if weights[1] <= 1e-4 && weights[2] <= 1e-4 {
		t.Errorf("At least one other token should get weight, got %v", weights)
	}
	if weights[1] > weights[0] || weights[2] > weights[0] {
		t.Errorf("Top-return token should dominate, got %v", weights)
	}
}

func TestEfficientFrontierConvergesAndSumsToOne(t *testing.T) {
	returns := []float64{0.10, 0.06, 0.02}
	cov := covFromCorr([]float64{0.08, 0.06, 0.04}, 0.25)

	engine := newEngine()
	for _, target := range []float64{0.02, 0.05, 0.08, 0.10} {
		weights := engine.CalculateEfficientFrontier(returns, cov, target)
		if !approxEqual(weightSum(weights), 1.0, 1e-9) {
			t.Errorf("Frontier weights for target %f sum to %f", target, weightSum(weights))
		}
		for i, w := range weights {
			if w < 0 || math.IsNaN(w) {
				t.Errorf("Invalid frontier weight [%d]=%f for target %f", i, w, target)
			}
		}
	}
}

func TestApplyRiskParityEqualizesContributions(t *testing.T) {
	// Asset 0 is four times as volatile; risk parity should shift
	// weight away from it.
	cov := covFromCorr([]float64{0.20, 0.05, 0.05}, 0.1)
	start := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	weights := newEngine().ApplyRiskParity(start, cov)

	if !approxEqual(weightSum(weights), 1.0, 1e-9) {
		t.Errorf("Risk parity weights sum to %f", weightSum(weights))
	}
	if weights[0] >= weights[1] || weights[0] >= weights[2] {
		t.Errorf("High-volatility asset should get less weight, got %v", weights)
	}
}

func TestBlendAlphaMapping(t *testing.T) {
	engine := newEngine()

	if alpha := engine.BlendAlpha(0.7, nil); alpha != 0.7 {
		t.Errorf("Floor risk adjustment should map to 0.7, got %f", alpha)
	}
	if alpha := engine.BlendAlpha(1.4, nil); !approxEqual(alpha, 0.9, 1e-9) {
		t.Errorf("Ceiling risk adjustment should map to 0.9, got %f", alpha)
	}
	if alpha := engine.BlendAlpha(1.05, nil); !approxEqual(alpha, 0.8, 1e-9) {
		t.Errorf("Midpoint risk adjustment should map to 0.8, got %f", alpha)
	}

	// Zero confidence pins the floor; full confidence restores the
	// volatility-driven alpha.
	if alpha := engine.BlendAlpha(1.4, floatPtr(0.0)); alpha != 0.7 {
		t.Errorf("Zero confidence should pin alpha at the floor, got %f", alpha)
	}
	if alpha := engine.BlendAlpha(1.4, floatPtr(1.0)); !approxEqual(alpha, 0.9, 1e-9) {
		t.Errorf("Full confidence should restore alpha_vol, got %f", alpha)
	}
	if alpha := engine.BlendAlpha(1.4, floatPtr(0.5)); !approxEqual(alpha, 0.8, 1e-9) {
		t.Errorf("Half confidence should land midway, got %f", alpha)
	}
}

func TestApplyConstraintsSumAndCap(t *testing.T) {
	engine := newEngine()
	cfg := engine.Config()

	cases := [][]float64{
		{0.9, 0.05, 0.05},
		{0.5, 0.3, 0.2},
		{1.5, 0.2, 0.1, 0.04},
		{0.02, 0.01, 0.03},
		{2.0, 2.0},
	}

	for _, input := range cases {
		weights := engine.ApplyConstraints(input)
		if !approxEqual(weightSum(weights), 1.0, 1e-6) {
			t.Errorf("ApplyConstraints(%v) sums to %f", input, weightSum(weights))
		}

		nonZero := 0
		for _, w := range weights {
			if w > 0 {
				nonZero++
			}
		}
		if nonZero >= 2 {
			for i, w := range weights {
				if w > cfg.MaxPositionSize+1e-4 {
					t.Errorf("ApplyConstraints(%v)[%d]=%f exceeds cap", input, i, w)
				}
			}
		}
	}
}

func TestApplyConstraintsSingleAssetSumWins(t *testing.T) {
	weights := newEngine().ApplyConstraints([]float64{0.8})

	// With one asset the cap cannot hold; sum == 1 wins.
	if len(weights) != 1 || !approxEqual(weights[0], 1.0, 1e-9) {
		t.Errorf("Single asset should normalize to 1.0, got %v", weights)
	}
}

func TestApplyConstraintsZeroesDust(t *testing.T) {
	weights := newEngine().ApplyConstraints([]float64{0.55, 0.42, 0.03})

	if weights[2] != 0 {
		t.Errorf("Dust weight should be zeroed, got %f", weights[2])
	}
	if !approxEqual(weightSum(weights), 1.0, 1e-6) {
		t.Errorf("Weights sum to %f after dust removal", weightSum(weights))
	}
}

func TestApplyConstraintsSanitizesNonFinite(t *testing.T) {
	weights := newEngine().ApplyConstraints([]float64{math.NaN(), math.Inf(1), 0.5, 0.5})

	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			t.Errorf("Weight %d not sanitized: %v", i, w)
		}
	}
	if !approxEqual(weightSum(weights), 1.0, 1e-6) {
		t.Errorf("Sanitized weights sum to %f", weightSum(weights))
	}
}
