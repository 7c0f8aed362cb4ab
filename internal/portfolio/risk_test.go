package portfolio_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/quantfolio/portfolio-backend/internal/portfolio"
)

func TestDynamicRiskAdjustmentHighVolatilityDeRisks(t *testing.T) {
	returns := map[string][]float64{
		"SOL": {0.06, -0.05, 0.07, -0.06, 0.05, -0.07},
		"ETH": {0.05, -0.06, 0.06, -0.05, 0.07, -0.05},
	}

	adjustment := portfolio.DynamicRiskAdjustment(returns)

	if adjustment >= 1.0 {
		t.Errorf("High volatility should de-risk below 1.0, got %f", adjustment)
	}
	if adjustment < 0.7 {
		t.Errorf("Adjustment should never drop below 0.7, got %f", adjustment)
	}
}

func TestDynamicRiskAdjustmentLowVolatilityLeansIn(t *testing.T) {
	returns := map[string][]float64{
		"USDT": {0.001, -0.001, 0.0005, -0.0008, 0.001},
		"DAI":  {0.0005, -0.0005, 0.001, -0.001, 0.0008},
	}

	adjustment := portfolio.DynamicRiskAdjustment(returns)

	if adjustment <= 1.0 {
		t.Errorf("Low volatility should lean in above 1.0, got %f", adjustment)
	}
	if adjustment > 1.4 {
		t.Errorf("Adjustment should never exceed 1.4, got %f", adjustment)
	}
}

func TestDynamicRiskAdjustmentNeutralWithoutData(t *testing.T) {
	if adj := portfolio.DynamicRiskAdjustment(nil); adj != 1.0 {
		t.Errorf("No data should be neutral 1.0, got %f", adj)
	}

	// Series too short to estimate volatility are ignored.
	short := map[string][]float64{"SOL": {0.01}}
	if adj := portfolio.DynamicRiskAdjustment(short); adj != 1.0 {
		t.Errorf("Short series should be neutral 1.0, got %f", adj)
	}
}

func TestDynamicRiskAdjustmentBitIdentical(t *testing.T) {
	// Many series with non-commuting volatilities, so any change in
	// accumulation order would show up in the result's bit pattern.
	returns := make(map[string][]float64, 13)
	for i := 0; i < 13; i++ {
		scale := 0.001 * float64(i+1) / 3.0
		returns[fmt.Sprintf("TOK%02d", i)] = []float64{
			scale, -scale * 1.7, scale * 0.3, -scale * 0.9, scale * 1.3,
		}
	}

	first := math.Float64bits(portfolio.DynamicRiskAdjustment(returns))
	for run := 1; run < 10000; run++ {
		got := math.Float64bits(portfolio.DynamicRiskAdjustment(returns))
		if got != first {
			t.Fatalf("Run %d produced different bits: %d vs %d", run, got, first)
		}
	}
}

func TestDynamicRiskAdjustmentBounds(t *testing.T) {
	extreme := map[string][]float64{
		"MEME": {0.5, -0.4, 0.6, -0.5, 0.4, -0.6},
	}
	if adj := portfolio.DynamicRiskAdjustment(extreme); adj != 0.7 {
		t.Errorf("Extreme volatility should pin the floor 0.7, got %f", adj)
	}

	flat := map[string][]float64{
		"STABLE": {0.0, 0.0, 0.0, 0.0},
	}
	if adj := portfolio.DynamicRiskAdjustment(flat); adj != 1.4 {
		t.Errorf("Zero volatility should pin the ceiling 1.4, got %f", adj)
	}
}
