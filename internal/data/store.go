// Package data provides price history storage and loading.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantfolio/portfolio-backend/pkg/types"
	"github.com/quantfolio/portfolio-backend/pkg/utils"
	"go.uber.org/zap"
)

// Store provides access to historical exchange-rate series. Series are
// persisted as JSON files per token pair, with an in-memory cache and
// a metadata index of available tokens.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string]*types.PriceHistory
	metadata map[string]*TokenMetadata
}

// TokenMetadata describes the available series for a token.
type TokenMetadata struct {
	Token      string    `json:"token"`
	QuoteToken string    `json:"quoteToken"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	PointCount int       `json:"pointCount"`
}

// NewStore creates a price history store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string]*types.PriceHistory),
		metadata: make(map[string]*TokenMetadata),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := store.loadMetadata(); err != nil {
		logger.Warn("Failed to load metadata", zap.Error(err))
	}

	return store, nil
}

// LoadHistory loads the price series for a token pair, sorted
// ascending by timestamp. Missing series return an error; the caller
// decides whether that degrades or aborts. The returned series is the
// caller's own copy.
func (s *Store) LoadHistory(ctx context.Context, token, quoteToken string) (*types.PriceHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(token, quoteToken)
	if cached, ok := s.cache[key]; ok {
		return cloneHistory(cached), nil
	}

	filename := filepath.Join(s.dataDir, key+".json")
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no history for %s/%s", token, quoteToken)
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var history types.PriceHistory
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	sort.SliceStable(history.Prices, func(i, j int) bool {
		return history.Prices[i].Timestamp.Before(history.Prices[j].Timestamp)
	})

	s.cache[key] = &history
	return cloneHistory(&history), nil
}

// cloneHistory copies a series so callers can mutate the result
// without corrupting the cache.
func cloneHistory(history *types.PriceHistory) *types.PriceHistory {
	clone := *history
	clone.Prices = make([]types.PricePoint, len(history.Prices))
	copy(clone.Prices, history.Prices)
	return &clone
}

// LoadHistories loads series for multiple tokens against a common
// quote token, skipping tokens with no stored data. Results follow the
// input token order.
func (s *Store) LoadHistories(ctx context.Context, tokens []string, quoteToken string) []types.PriceHistory {
	histories := make([]types.PriceHistory, 0, len(tokens))
	for _, token := range tokens {
		history, err := s.LoadHistory(ctx, token, quoteToken)
		if err != nil {
			s.logger.Debug("No stored history",
				zap.String("token", token),
				zap.String("quote", quoteToken))
			continue
		}
		histories = append(histories, *history)
	}
	return histories
}

// SaveHistory persists a price series and updates the metadata index.
// Points are sorted before writing so readers always get ascending
// series.
func (s *Store) SaveHistory(history *types.PriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := *history
	sorted.Prices = make([]types.PricePoint, len(history.Prices))
	copy(sorted.Prices, history.Prices)
	sort.SliceStable(sorted.Prices, func(i, j int) bool {
		return sorted.Prices[i].Timestamp.Before(sorted.Prices[j].Timestamp)
	})

	key := pairKey(sorted.Token, sorted.QuoteToken)
	filename := filepath.Join(s.dataDir, key+".json")

	raw, err := json.MarshalIndent(&sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	s.cache[key] = &sorted

	if len(sorted.Prices) > 0 {
		s.metadata[key] = &TokenMetadata{
			Token:      sorted.Token,
			QuoteToken: sorted.QuoteToken,
			StartDate:  sorted.Prices[0].Timestamp,
			EndDate:    sorted.Prices[len(sorted.Prices)-1].Timestamp,
			PointCount: len(sorted.Prices),
		}
	}

	if err := s.saveMetadata(); err != nil {
		s.logger.Warn("Failed to save metadata", zap.Error(err))
	}

	return nil
}

// AvailableTokens returns the tokens with stored series, sorted for
// stable listings.
func (s *Store) AvailableTokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]string, 0, len(s.metadata))
	for _, meta := range s.metadata {
		tokens = append(tokens, meta.Token)
	}
	sort.Strings(tokens)
	return tokens
}

// DataRange returns the stored time range for a token pair.
func (s *Store) DataRange(token, quoteToken string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[pairKey(token, quoteToken)]; ok {
		return meta.StartDate, meta.EndDate, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("no data available for %s/%s", token, quoteToken)
}

// ClearCache clears the in-memory cache.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[string]*types.PriceHistory)
}

// CacheSize returns the number of cached series.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.cache)
}

// pairKey builds the filename-safe form of the canonical pair
// identifier, so "sol"/"usdc" and "SOL"/"USDC" share one series.
func pairKey(token, quoteToken string) string {
	return strings.ReplaceAll(utils.PairString(token, quoteToken), "/", "_")
}

func (s *Store) loadMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")

	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var metadata map[string]*TokenMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata

	return nil
}

func (s *Store) saveMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")

	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}
