package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// Default cut lines for the trained scorers
const (
	defaultReconstructionThreshold = 0.1
	outlierFlagScore               = 0.6
	outlierCriticalScore           = 0.8

	confidenceReconstruction = 0.85
	confidenceOutlier        = 0.9
)

// ReconstructionScorer scores a feature vector by mean absolute
// reconstruction error against an externally trained model.
type ReconstructionScorer interface {
	Score(ctx context.Context, vec []float64) (float64, error)
}

// OutlierScorer produces a novelty score in [0,1] for a feature vector.
type OutlierScorer interface {
	Score(ctx context.Context, vec []float64) (float64, error)
}

// ModelDetector wraps the two trained scorers. Scorers are initialized once
// at startup and reused; a scorer failure degrades detection coverage instead
// of failing the analysis.
type ModelDetector struct {
	recon   ReconstructionScorer
	outlier OutlierScorer
	logger  *zap.Logger
}

// NewModelDetector creates a model-based detector. Either scorer may be nil;
// its checks are then skipped and results are marked degraded.
func NewModelDetector(recon ReconstructionScorer, outlier OutlierScorer, logger *zap.Logger) *ModelDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelDetector{recon: recon, outlier: outlier, logger: logger}
}

// Detect scores the flattened feature vector with both models. The boolean
// result reports degraded coverage: a scorer that was missing or errored.
func (d *ModelDetector) Detect(ctx context.Context, profile *behavior.Profile, features *behavior.Features) ([]behavior.Anomaly, bool) {
	if profile == nil || features == nil {
		return nil, true
	}

	vec := features.Vector()
	now := time.Now()
	degraded := false
	var found []behavior.Anomaly

	threshold := profile.Baseline.SequentialThreshold
	if threshold <= 0 {
		threshold = defaultReconstructionThreshold
	}

	if d.recon == nil {
		degraded = true
	} else if reconErr, err := d.recon.Score(ctx, vec); err != nil {
		d.logger.Warn("reconstruction scorer failed, degrading coverage",
			zap.String("user_id", profile.UserID), zap.Error(err))
		degraded = true
	} else if reconErr > threshold {
		severity := behavior.SeverityMedium
		if reconErr > 2*threshold {
			severity = behavior.SeverityHigh
		}
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "model:reconstruction",
			Type:           behavior.AnomalyNovelty,
			Severity:       severity,
			DeviationScore: reconErr,
			Confidence:     confidenceReconstruction,
			Context: map[string]interface{}{
				"reconstruction_error": reconErr,
				"threshold":            threshold,
			},
			Timestamp: now,
		})
	}

	if d.outlier == nil {
		degraded = true
	} else if score, err := d.outlier.Score(ctx, vec); err != nil {
		d.logger.Warn("outlier scorer failed, degrading coverage",
			zap.String("user_id", profile.UserID), zap.Error(err))
		degraded = true
	} else if score > outlierFlagScore {
		severity := behavior.SeverityHigh
		if score > outlierCriticalScore {
			severity = behavior.SeverityCritical
		}
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "model:outlier",
			Type:           behavior.AnomalyOutlier,
			Severity:       severity,
			DeviationScore: score,
			Confidence:     confidenceOutlier,
			Context:        map[string]interface{}{"outlier_score": score},
			Timestamp:      now,
		})
	}

	return found, degraded
}
