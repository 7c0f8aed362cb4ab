// Package portfolio implements the portfolio optimization engine:
// return/risk statistics, token selection, Sharpe/risk-parity weight
// optimization, rebalance decisioning and performance metrics.
package portfolio

// Tuning constants. These values are empirically calibrated; behavior
// parity depends on the exact numbers, so they are fixed rather than
// derived at runtime.
const (
	// RiskFreeRate is the annual risk-free rate used in Sharpe and
	// Sortino calculations (divided by 365 for daily series).
	RiskFreeRate = 0.02

	// MaxPositionSize caps any single token's weight.
	MaxPositionSize = 0.6

	// MinPositionSize zeroes out dust allocations below this weight.
	MinPositionSize = 0.05

	// RebalanceThreshold is the default per-token weight drift that
	// triggers rebalancing.
	RebalanceThreshold = 0.1

	// MaxHoldings bounds the selected token universe.
	MaxHoldings = 6

	// MaxOptimizationIterations is the hard cap on iterative solvers.
	MaxOptimizationIterations = 100

	// RegularizationFactor is added to the covariance diagonal so no
	// variance is exactly zero.
	RegularizationFactor = 1e-6

	// MinLiquidityScore gates token selection when a liquidity score
	// is reported.
	MinLiquidityScore = 0.1

	// MinMarketCap gates token selection when a market cap is
	// reported, in quote units.
	MinMarketCap = 100_000.0

	// MaxCorrelation is the pairwise return-correlation ceiling for
	// the greedy diversification pass.
	MaxCorrelation = 0.7

	// PredictionAlphaFloor is the minimum Sharpe share in the
	// Sharpe/risk-parity blend when prediction confidence is supplied.
	PredictionAlphaFloor = 0.7

	// WeightTolerance is the convergence tolerance on weight sums and
	// per-iteration weight deltas.
	WeightTolerance = 1e-6

	// frontierGridPoints is the number of target returns scanned by
	// the Sharpe maximizer.
	frontierGridPoints = 50

	// constraintPasses caps the clamp-and-renormalize loop.
	constraintPasses = 10
)

// Config carries the engine's tuning parameters. DefaultConfig returns
// the calibrated values above; tests and callers may override
// individual fields.
type Config struct {
	RiskFreeRate       float64 `json:"riskFreeRate" mapstructure:"risk_free_rate"`
	MaxPositionSize    float64 `json:"maxPositionSize" mapstructure:"max_position_size"`
	MinPositionSize    float64 `json:"minPositionSize" mapstructure:"min_position_size"`
	RebalanceThreshold float64 `json:"rebalanceThreshold" mapstructure:"rebalance_threshold"`
	MaxHoldings        int     `json:"maxHoldings" mapstructure:"max_holdings"`
	MaxIterations      int     `json:"maxIterations" mapstructure:"max_iterations"`
	MinLiquidityScore  float64 `json:"minLiquidityScore" mapstructure:"min_liquidity_score"`
	MinMarketCap       float64 `json:"minMarketCap" mapstructure:"min_market_cap"`
	MaxCorrelation     float64 `json:"maxCorrelation" mapstructure:"max_correlation"`
	Parallelism        int     `json:"parallelism" mapstructure:"parallelism"`
}

// DefaultConfig returns the calibrated engine configuration.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:       RiskFreeRate,
		MaxPositionSize:    MaxPositionSize,
		MinPositionSize:    MinPositionSize,
		RebalanceThreshold: RebalanceThreshold,
		MaxHoldings:        MaxHoldings,
		MaxIterations:      MaxOptimizationIterations,
		MinLiquidityScore:  MinLiquidityScore,
		MinMarketCap:       MinMarketCap,
		MaxCorrelation:     MaxCorrelation,
		Parallelism:        4,
	}
}
