package data

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// QualityValidator checks historical price series integrity before a
// series is trusted by the optimizer. Bad history silently skews
// covariance estimates, so problems are surfaced at ingest time.
type QualityValidator struct {
	logger *zap.Logger

	MaxDailyMove      float64       // Max move between consecutive points (e.g., 0.5 for 50%)
	MaxGap            time.Duration // Max spacing between points before it counts as a gap
	MinUsablePoints   int           // Below this the series cannot support covariance
	MinUsabilityScore int           // Score threshold for IsUsable
}

// QualityIssue describes one problem found in a series.
type QualityIssue struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"` // "critical", "high", "medium"
	Timestamp  time.Time `json:"timestamp"`
	PointIndex int       `json:"pointIndex"`
	Message    string    `json:"message"`
}

// QualityReport summarizes the assessment of one series.
type QualityReport struct {
	Token        string         `json:"token"`
	QuoteToken   string         `json:"quoteToken"`
	TotalPoints  int            `json:"totalPoints"`
	Issues       []QualityIssue `json:"issues"`
	QualityScore int            `json:"qualityScore"` // 0-100
	IsUsable     bool           `json:"isUsable"`

	GapCount          int `json:"gapCount"`
	PriceAnomalyCount int `json:"priceAnomalyCount"`
	DuplicateCount    int `json:"duplicateCount"`
}

// NewQualityValidator creates a validator with defaults tuned for
// daily crypto series.
func NewQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:            logger,
		MaxDailyMove:      0.5,
		MaxGap:            48 * time.Hour,
		MinUsablePoints:   2,
		MinUsabilityScore: 50,
	}
}

// Validate inspects a sorted price series and reports every issue
// found. The series itself is never mutated.
func (v *QualityValidator) Validate(history *types.PriceHistory) *QualityReport {
	report := &QualityReport{
		Token:        history.Token,
		QuoteToken:   history.QuoteToken,
		TotalPoints:  len(history.Prices),
		Issues:       []QualityIssue{},
		QualityScore: 100,
	}

	if len(history.Prices) < v.MinUsablePoints {
		report.addIssue(QualityIssue{
			Type:     "insufficient_data",
			Severity: "critical",
			Message:  fmt.Sprintf("series has %d points, need at least %d", len(history.Prices), v.MinUsablePoints),
		}, 100)
		report.IsUsable = false
		return report
	}

	for i, point := range history.Prices {
		if point.Price.Sign() <= 0 {
			report.PriceAnomalyCount++
			report.addIssue(QualityIssue{
				Type:       "non_positive_price",
				Severity:   "critical",
				Timestamp:  point.Timestamp,
				PointIndex: i,
				Message:    fmt.Sprintf("price %s at point %d", point.Price, i),
			}, 25)
		}
		if i == 0 {
			continue
		}

		prev := history.Prices[i-1]
		if point.Timestamp.Equal(prev.Timestamp) {
			report.DuplicateCount++
			report.addIssue(QualityIssue{
				Type:       "duplicate_timestamp",
				Severity:   "medium",
				Timestamp:  point.Timestamp,
				PointIndex: i,
				Message:    "timestamp repeats previous point",
			}, 5)
		} else if gap := point.Timestamp.Sub(prev.Timestamp); gap > v.MaxGap {
			report.GapCount++
			report.addIssue(QualityIssue{
				Type:       "gap",
				Severity:   "medium",
				Timestamp:  point.Timestamp,
				PointIndex: i,
				Message:    fmt.Sprintf("gap of %s before point %d", gap, i),
			}, 5)
		}

		if prev.Price.Sign() > 0 && point.Price.Sign() > 0 {
			base := prev.Price.InexactFloat64()
			move := math.Abs(point.Price.InexactFloat64()-base) / base
			if move > v.MaxDailyMove {
				report.PriceAnomalyCount++
				report.addIssue(QualityIssue{
					Type:       "extreme_move",
					Severity:   "high",
					Timestamp:  point.Timestamp,
					PointIndex: i,
					Message:    fmt.Sprintf("move of %.1f%% at point %d", move*100, i),
				}, 10)
			}
		}
	}

	report.IsUsable = report.QualityScore >= v.MinUsabilityScore

	if len(report.Issues) > 0 {
		v.logger.Warn("Price series quality issues",
			zap.String("token", report.Token),
			zap.Int("issues", len(report.Issues)),
			zap.Int("score", report.QualityScore),
			zap.Bool("usable", report.IsUsable),
		)
	}

	return report
}

func (r *QualityReport) addIssue(issue QualityIssue, penalty int) {
	r.Issues = append(r.Issues, issue)
	r.QualityScore -= penalty
	if r.QualityScore < 0 {
		r.QualityScore = 0
	}
}
