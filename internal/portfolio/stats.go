package portfolio

import (
	"math"
	"sort"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// ExpectedReturns computes the per-token expected return
// (predicted - current) / current, in the order of the tokens slice.
// Tokens with no prediction entry, or a non-positive current price,
// contribute a neutral 0.0.
func ExpectedReturns(tokens []types.TokenInfo, predictions map[string]float64) []float64 {
	returns := make([]float64, len(tokens))
	for i, token := range tokens {
		current := token.Price.InexactFloat64()
		if current <= 0 {
			continue
		}
		predicted, ok := predictions[token.Symbol]
		if !ok {
			continue
		}
		returns[i] = (predicted - current) / current
	}
	return returns
}

// DailyReturns computes simple returns per token from price histories.
// Duplicate histories for the same token are ignored (first occurrence
// wins). Points are sorted ascending by timestamp before differencing.
// Steps whose base price is not positive are skipped, so the output
// never contains NaN or Inf.
func DailyReturns(histories []types.PriceHistory) map[string][]float64 {
	returns := make(map[string][]float64, len(histories))
	for _, history := range histories {
		if _, seen := returns[history.Token]; seen {
			continue
		}

		points := make([]types.PricePoint, len(history.Prices))
		copy(points, history.Prices)
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Timestamp.Before(points[j].Timestamp)
		})

		series := make([]float64, 0, len(points))
		for i := 1; i < len(points); i++ {
			base := points[i-1].Price.InexactFloat64()
			if base <= 0 {
				continue
			}
			price := points[i].Price.InexactFloat64()
			series = append(series, (price-base)/base)
		}
		returns[history.Token] = series
	}
	return returns
}

// CovarianceMatrix computes the sample covariance matrix of the given
// return series. Series of unequal length are aligned by trimming to
// the shorter length from the tail, keeping the most recent data.
// Pairs with fewer than two aligned points get covariance 0. The
// diagonal receives a regularization floor so no variance is exactly
// zero.
func CovarianceMatrix(series [][]float64) [][]float64 {
	n := len(series)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := sampleCovariance(series[i], series[j])
			cov[i][j] = c
			cov[j][i] = c
		}
		cov[i][i] += RegularizationFactor
	}
	return cov
}

// sampleCovariance tail-aligns two series and computes the /(n-1)
// sample covariance; fewer than two aligned points yield 0.
func sampleCovariance(a, b []float64) float64 {
	m := len(a)
	if len(b) < m {
		m = len(b)
	}
	if m < 2 {
		return 0
	}
	ta := a[len(a)-m:]
	tb := b[len(b)-m:]

	meanA := mean(ta)
	meanB := mean(tb)

	sum := 0.0
	for k := 0; k < m; k++ {
		sum += (ta[k] - meanA) * (tb[k] - meanB)
	}
	return sum / float64(m-1)
}

// Correlation computes the Pearson correlation of two tail-aligned
// return series; degenerate inputs (short series, zero variance)
// yield 0.
func Correlation(a, b []float64) float64 {
	cov := sampleCovariance(a, b)
	if cov == 0 {
		return 0
	}

	m := len(a)
	if len(b) < m {
		m = len(b)
	}
	stdA := StdDev(a[len(a)-m:])
	stdB := StdDev(b[len(b)-m:])
	if stdA <= 0 || stdB <= 0 {
		return 0
	}
	return cov / (stdA * stdB)
}

// PortfolioReturn is the weighted expected return w·r.
func PortfolioReturn(weights, returns []float64) float64 {
	total := 0.0
	for i := range weights {
		total += weights[i] * returns[i]
	}
	return total
}

// PortfolioStdDev is sqrt(wᵀΣw); a negative quadratic form from
// numerical noise is treated as zero variance.
func PortfolioStdDev(weights []float64, cov [][]float64) float64 {
	variance := 0.0
	for i := range weights {
		for j := range weights {
			variance += weights[i] * weights[j] * cov[i][j]
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// StdDev is the sample standard deviation (n-1 denominator); series
// with fewer than two points yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
