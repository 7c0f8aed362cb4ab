package portfolio

import "sort"

// DynamicRiskAdjustment maps recent realized volatility to a conviction
// multiplier in [0.7, 1.4]. Calm markets push the multiplier up (lean
// harder on the Sharpe-optimal allocation); turbulent markets pull it
// down toward risk parity. The multiplier scales confidence in the
// optimizer's choice, not the covariance model itself.
//
// The linear mapping 1.4 - 14·vol is calibrated so that ~1% mean daily
// volatility is neutral-aggressive and ~5% pins the floor.
func DynamicRiskAdjustment(dailyReturns map[string][]float64) float64 {
	// Accumulate in sorted-key order: float addition is order-sensitive
	// and map iteration order is randomized, so a fixed order is what
	// keeps identical inputs bit-identical.
	tokens := make([]string, 0, len(dailyReturns))
	for token := range dailyReturns {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	totalVol := 0.0
	counted := 0
	for _, token := range tokens {
		series := dailyReturns[token]
		if len(series) < 2 {
			continue
		}
		totalVol += StdDev(series)
		counted++
	}
	if counted == 0 {
		return 1.0
	}

	meanVol := totalVol / float64(counted)
	return clamp(1.4-14.0*meanVol, 0.7, 1.4)
}
