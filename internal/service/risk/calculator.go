package risk

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
)

// Fixed fusion weights; they sum to 1 so the fused score stays in [0,1]
// whenever the components do.
const (
	WeightBehavioral = 0.3
	WeightAnomaly    = 0.4
	WeightContextual = 0.2
	WeightHistorical = 0.1

	// TrendDeadband absorbs score noise: movement within the band against
	// the previous stored score classifies as stable.
	TrendDeadband = 0.05
)

// Severity contributions to the anomaly component, additive and capped at 1
var severityWeight = map[behavior.Severity]float64{
	behavior.SeverityLow:      0.1,
	behavior.SeverityMedium:   0.3,
	behavior.SeverityHigh:     0.6,
	behavior.SeverityCritical: 1.0,
}

// HistoryReader supplies previously stored risk scores, newest first.
type HistoryReader interface {
	LatestRiskScores(ctx context.Context, userID string, limit int) ([]behavior.RiskScore, error)
}

// Calculator fuses behavioral, anomaly, contextual and historical risk
// components into one calibrated score with a trend classification.
type Calculator struct {
	history HistoryReader
}

// NewCalculator creates a risk calculator over the given history store.
func NewCalculator(history HistoryReader) *Calculator {
	return &Calculator{history: history}
}

// Calculate fuses the four component scores. Trend compares the fused total
// against the identity's most recent stored score with a deadband.
func (c *Calculator) Calculate(ctx context.Context, profile *behavior.Profile, features *behavior.Features, anomalies []behavior.Anomaly) (*behavior.RiskScore, error) {
	if profile == nil || profile.UserID == "" {
		return nil, errors.ErrEmptyUserID
	}

	history, err := c.history.LatestRiskScores(ctx, profile.UserID, 10)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("risk history", err)
	}

	behavioral := behavioralComponent(profile)
	anomalyScore := anomalyComponent(anomalies)
	contextual := contextualComponent(features)
	historical := historicalComponent(history)

	components := []float64{behavioral, anomalyScore, contextual, historical}
	total := WeightBehavioral*behavioral +
		WeightAnomaly*anomalyScore +
		WeightContextual*contextual +
		WeightHistorical*historical

	score := &behavior.RiskScore{
		UserID:     profile.UserID,
		Score:      clamp01(total),
		Confidence: confidence(components),
		ContributingFactors: []behavior.RiskFactor{
			{Name: "behavioral", Score: behavioral, Weight: WeightBehavioral},
			{Name: "anomaly", Score: anomalyScore, Weight: WeightAnomaly},
			{Name: "contextual", Score: contextual, Weight: WeightContextual},
			{Name: "historical", Score: historical, Weight: WeightHistorical},
		},
		Trend:     trend(total, history),
		Timestamp: time.Now(),
	}
	return score, nil
}

// behavioralComponent scores how little settled behavior the profile
// explains: an identity with a confident profile full of stable patterns
// carries low behavioral risk, a thin or unstable profile carries high.
func behavioralComponent(profile *behavior.Profile) float64 {
	if len(profile.Patterns) == 0 {
		return 1.0
	}
	meanStability := 0.0
	for _, p := range profile.Patterns {
		meanStability += p.Stability
	}
	meanStability /= float64(len(profile.Patterns))
	return clamp01(1.0 - profile.ConfidenceScore*meanStability)
}

// anomalyComponent sums severity weights over the findings, capped at 1.
func anomalyComponent(anomalies []behavior.Anomaly) float64 {
	total := 0.0
	for _, a := range anomalies {
		total += severityWeight[a.Severity]
	}
	return clamp01(total)
}

// contextualComponent scores off-hours and weekend activity fractions.
func contextualComponent(features *behavior.Features) float64 {
	if features == nil {
		return 0
	}
	offHours := 1.0 - features.Contextual.BusinessHoursRatio
	return clamp01(0.6*offHours + 0.4*features.Contextual.WeekendRatio)
}

// historicalComponent is an exponential moving average over recent stored
// scores, newest weighted heaviest (alpha 0.3, same smoothing the risk
// profile updates use).
func historicalComponent(history []behavior.RiskScore) float64 {
	if len(history) == 0 {
		return 0
	}
	const alpha = 0.3
	// Fold oldest to newest so the newest score dominates.
	ema := history[len(history)-1].Score
	for i := len(history) - 2; i >= 0; i-- {
		ema = alpha*history[i].Score + (1-alpha)*ema
	}
	return clamp01(ema)
}

// confidence derives from the dispersion of the component scores: components
// that agree produce a confident fusion, scattered components do not.
func confidence(components []float64) float64 {
	sd := math.Sqrt(stat.Variance(components, nil))
	conf := 1.0 - sd
	if conf < 0.1 {
		conf = 0.1
	}
	return clamp01(conf)
}

// trend compares against the most recent stored score inside a deadband.
func trend(total float64, history []behavior.RiskScore) behavior.Trend {
	if len(history) == 0 {
		return behavior.TrendStable
	}
	diff := total - history[0].Score
	switch {
	case diff > TrendDeadband:
		return behavior.TrendIncreasing
	case diff < -TrendDeadband:
		return behavior.TrendDecreasing
	default:
		return behavior.TrendStable
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
