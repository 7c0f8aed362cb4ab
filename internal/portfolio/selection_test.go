package portfolio_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/internal/portfolio"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func newEngine() *portfolio.Engine {
	return portfolio.NewEngine(zap.NewNop(), portfolio.DefaultConfig())
}

func TestSelectOptimalTokensFallbackWhenGatesFilterAll(t *testing.T) {
	// Market cap universally absent fails every gate; availability
	// overrides strict filtering.
	tokens := []types.TokenInfo{
		makeToken("SOL", 100, floatPtr(0.9), nil),
		makeToken("ETH", 2000, floatPtr(0.8), nil),
		makeToken("BTC", 50000, floatPtr(0.7), nil),
	}
	predictions := map[string]float64{"SOL": 110, "ETH": 2100, "BTC": 52000}

	engine := newEngine()

	selected := engine.SelectOptimalTokens(tokens, predictions, nil, 2)
	if len(selected) != 2 {
		t.Fatalf("Fallback should return min(len, max)=2 tokens, got %d", len(selected))
	}
	if selected[0].Symbol != "SOL" || selected[1].Symbol != "ETH" {
		t.Errorf("Fallback should preserve input order, got %s, %s",
			selected[0].Symbol, selected[1].Symbol)
	}

	selected = engine.SelectOptimalTokens(tokens, predictions, nil, 10)
	if len(selected) != 3 {
		t.Errorf("Fallback with large max should return all tokens, got %d", len(selected))
	}
}

func TestSelectOptimalTokensAppliesGates(t *testing.T) {
	tokens := []types.TokenInfo{
		makeToken("GOOD", 100, floatPtr(0.9), floatPtr(5_000_000)),
		makeToken("ILLIQUID", 100, floatPtr(0.01), floatPtr(5_000_000)),
		makeToken("MICRO", 100, floatPtr(0.9), floatPtr(50_000)),
	}
	predictions := map[string]float64{"GOOD": 110, "ILLIQUID": 150, "MICRO": 150}
	histories := []types.PriceHistory{
		makeHistory("GOOD", []float64{100, 101, 102, 101, 103}),
		makeHistory("ILLIQUID", []float64{100, 101, 102, 101, 103}),
		makeHistory("MICRO", []float64{100, 101, 102, 101, 103}),
	}

	selected := newEngine().SelectOptimalTokens(tokens, predictions, histories, 3)

	if len(selected) != 1 || selected[0].Symbol != "GOOD" {
		t.Errorf("Only the gated-in token should survive, got %v", symbols(selected))
	}
}

func TestSelectOptimalTokensRanksByScore(t *testing.T) {
	liquidity := floatPtr(0.9)
	cap := floatPtr(5_000_000)
	tokens := []types.TokenInfo{
		makeToken("LOW", 100, liquidity, cap),
		makeToken("HIGH", 100, liquidity, cap),
	}
	predictions := map[string]float64{"LOW": 101, "HIGH": 120}
	histories := []types.PriceHistory{
		makeHistory("LOW", []float64{100, 101, 99, 102, 100}),
		// Uncorrelated path so the greedy pass keeps both.
		makeHistory("HIGH", []float64{100, 99, 101, 100, 102}),
	}

	selected := newEngine().SelectOptimalTokens(tokens, predictions, histories, 2)

	if len(selected) != 2 {
		t.Fatalf("Expected 2 tokens, got %d", len(selected))
	}
	if selected[0].Symbol != "HIGH" {
		t.Errorf("Highest score should come first, got %v", symbols(selected))
	}
}

func TestSelectOptimalTokensSkipsCorrelated(t *testing.T) {
	liquidity := floatPtr(0.9)
	cap := floatPtr(5_000_000)
	tokens := []types.TokenInfo{
		makeToken("A", 100, liquidity, cap),
		makeToken("B", 50, liquidity, cap),
		makeToken("C", 100, liquidity, cap),
	}
	// B's prices are A's scaled by 0.5: identical returns, correlation 1.
	aPrices := []float64{100, 101, 103, 102, 105}
	bPrices := make([]float64, len(aPrices))
	for i, p := range aPrices {
		bPrices[i] = p * 0.5
	}
	// C's returns are the negation of A's: correlation -1.
	cPrices := make([]float64, len(aPrices))
	cPrices[0] = 100
	for i := 1; i < len(aPrices); i++ {
		r := (aPrices[i] - aPrices[i-1]) / aPrices[i-1]
		cPrices[i] = cPrices[i-1] * (1 - r)
	}
	histories := []types.PriceHistory{
		makeHistory("A", aPrices),
		makeHistory("B", bPrices),
		makeHistory("C", cPrices),
	}
	predictions := map[string]float64{"A": 120, "B": 57, "C": 105}

	selected := newEngine().SelectOptimalTokens(tokens, predictions, histories, 3)

	got := symbols(selected)
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Expected [A C] (B perfectly correlated with A), got %v", got)
	}
}

func TestSelectOptimalTokensDeterministic(t *testing.T) {
	liquidity := floatPtr(0.9)
	cap := floatPtr(5_000_000)
	tokens := []types.TokenInfo{
		makeToken("A", 100, liquidity, cap),
		makeToken("B", 200, liquidity, cap),
		makeToken("C", 300, liquidity, cap),
		makeToken("D", 400, liquidity, cap),
	}
	predictions := map[string]float64{"A": 110, "B": 215, "C": 320, "D": 410}
	histories := []types.PriceHistory{
		makeHistory("A", []float64{100, 102, 99, 104, 101}),
		makeHistory("B", []float64{200, 195, 205, 201, 208}),
		makeHistory("C", []float64{300, 310, 295, 312, 305}),
		makeHistory("D", []float64{400, 390, 410, 402, 415}),
	}

	engine := newEngine()
	first := symbols(engine.SelectOptimalTokens(tokens, predictions, histories, 3))
	for i := 0; i < 10; i++ {
		got := symbols(engine.SelectOptimalTokens(tokens, predictions, histories, 3))
		if len(got) != len(first) {
			t.Fatalf("Selection size changed across calls: %v vs %v", got, first)
		}
		for j := range got {
			if got[j] != first[j] {
				t.Fatalf("Selection order changed across calls: %v vs %v", got, first)
			}
		}
	}
}

func symbols(tokens []types.TokenInfo) []string {
	out := make([]string, len(tokens))
	for i, token := range tokens {
		out[i] = token.Symbol
	}
	return out
}
