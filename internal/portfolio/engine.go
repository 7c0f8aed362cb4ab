package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/workers"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Engine runs portfolio optimization cycles. It is stateless across
// calls: every invocation computes purely from its inputs, and
// identical inputs produce bit-identical reports regardless of
// parallelism.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	pool   *workers.Pool
}

// NewEngine creates an optimization engine.
func NewEngine(logger *zap.Logger, cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		pool:   workers.NewPool(logger, cfg.Parallelism),
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ExecuteOptimization runs one full optimization cycle: select the
// token universe, compute return and risk statistics, optimize and
// blend weights under constraints, compare against the wallet's
// current allocation, and emit trade actions plus expected metrics.
//
// A non-positive rebalanceThreshold falls back to the configured
// default. Insufficient data degrades locally (neutral returns, empty
// selection) rather than failing the cycle; an error is returned only
// for caller contract violations such as a wallet whose total value is
// inconsistent with its holdings.
func (e *Engine) ExecuteOptimization(
	wallet types.WalletInfo,
	data types.PortfolioData,
	rebalanceThreshold float64,
) (*types.PortfolioReport, error) {
	if err := checkWallet(wallet); err != nil {
		return nil, err
	}
	if rebalanceThreshold <= 0 {
		rebalanceThreshold = e.cfg.RebalanceThreshold
	}

	report := &types.PortfolioReport{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
	}

	selected := e.SelectOptimalTokens(data.Tokens, data.Predictions, data.HistoricalPrices, e.cfg.MaxHoldings)
	if len(selected) == 0 {
		e.logger.Warn("empty token universe, holding current allocation")
		report.OptimalWeights = types.PortfolioWeights{Weights: map[string]float64{}}
		report.Actions = []types.TradingAction{types.Hold()}
		return report, nil
	}

	expected := ExpectedReturns(selected, data.Predictions)
	allReturns := DailyReturns(data.HistoricalPrices)

	series := make([][]float64, len(selected))
	selectedReturns := make(map[string][]float64, len(selected))
	for i, token := range selected {
		series[i] = allReturns[token.Symbol]
		selectedReturns[token.Symbol] = allReturns[token.Symbol]
	}
	cov := CovarianceMatrix(series)

	riskAdjustment := DynamicRiskAdjustment(selectedReturns)

	// Conviction scaling reshapes expected returns, never the
	// covariance model.
	adjusted := make([]float64, len(expected))
	for i, r := range expected {
		adjusted[i] = r * riskAdjustment
	}

	sharpeWeights := e.MaximizeSharpeRatio(adjusted, cov)
	parityWeights := e.ApplyRiskParity(sharpeWeights, cov)
	alpha := e.BlendAlpha(riskAdjustment, data.PredictionConfidence)
	weights := e.ApplyConstraints(BlendWeights(sharpeWeights, parityWeights, alpha))

	sharpe := 0.0
	if std := PortfolioStdDev(weights, cov); std > 0 {
		sharpe = (PortfolioReturn(weights, adjusted) - e.cfg.RiskFreeRate/365.0) / std
	}

	current := CalculateCurrentWeights(selected, wallet)
	rebalanceNeeded := NeedsRebalancing(current, weights, rebalanceThreshold)

	var actions []types.TradingAction
	if rebalanceNeeded {
		actions = GenerateRebalanceActions(selected, current, weights, rebalanceThreshold, wallet)
	} else {
		actions = []types.TradingAction{types.Hold()}
	}

	weightMap := make(map[string]float64, len(selected))
	for i, token := range selected {
		weightMap[token.Symbol] = weights[i]
	}
	validated, sanitized := e.ValidateWeights(weightMap)

	report.OptimalWeights = types.PortfolioWeights{Weights: validated, SharpeRatio: sharpe}
	report.RebalanceNeeded = rebalanceNeeded
	report.Actions = actions
	report.ExpectedMetrics = e.CalculateMetrics(weights, expected, cov, selectedReturns, selected, current)
	report.WeightsSanitized = sanitized

	e.logger.Info("optimization cycle complete",
		zap.String("report", report.ID),
		zap.Int("universe", len(data.Tokens)),
		zap.Int("selected", len(selected)),
		zap.Float64("riskAdjustment", riskAdjustment),
		zap.Float64("alpha", alpha),
		zap.Float64("sharpe", sharpe),
		zap.Bool("rebalance", rebalanceNeeded))

	return report, nil
}

// ValidateWeights is the last line of defense before a report leaves
// the engine: any NaN, Inf, or negative weight is replaced with 0.0.
// The returned flag marks that an anomaly slipped past the upstream
// zero-guards, for observability.
func (e *Engine) ValidateWeights(weights map[string]float64) (map[string]float64, bool) {
	validated := make(map[string]float64, len(weights))
	sanitized := false
	for token, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			e.logger.Warn("invalid weight sanitized",
				zap.String("token", token),
				zap.Float64("weight", w))
			validated[token] = 0
			sanitized = true
			continue
		}
		validated[token] = w
	}
	return validated, sanitized
}

// checkWallet rejects wallets whose total value is structurally
// inconsistent with their holdings. This is the rare hard-error path;
// data-quality problems inside the universe degrade locally instead.
func checkWallet(wallet types.WalletInfo) error {
	if wallet.TotalValue < 0 {
		return fmt.Errorf("wallet total value is negative: %f", wallet.TotalValue)
	}
	if wallet.TotalValue == 0 {
		for token, amount := range wallet.Holdings {
			if amount.Sign() > 0 {
				return fmt.Errorf("wallet holds %s but reports zero total value", token)
			}
		}
	}
	return nil
}
