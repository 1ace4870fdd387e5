package anomaly

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// Fixed confidences for statistical findings. The ranking stage filters at
// confidence > 0.6, so everything here survives ranking on its own merits.
const (
	confidenceDeviation = 0.75
	confidenceNovelty   = 0.8
	confidenceLowSignal = 0.65
)

// StatisticalDetector flags deviations from a profile's baseline thresholds
// using fixed rules. It is deterministic, reads thresholds only, and never
// errors; a missing baseline threshold suppresses that check.
type StatisticalDetector struct{}

// NewStatisticalDetector creates the threshold-rule detector.
func NewStatisticalDetector() *StatisticalDetector {
	return &StatisticalDetector{}
}

// Detect compares live features against the profile baseline. All threshold
// comparisons are strict: a value exactly at the multiple does not trigger.
func (d *StatisticalDetector) Detect(profile *behavior.Profile, features *behavior.Features) []behavior.Anomaly {
	if profile == nil || features == nil {
		return nil
	}

	var found []behavior.Anomaly
	now := time.Now()
	baseline := profile.Baseline
	mult := profile.Thresholds.DeviationMultiplier
	if mult <= 0 {
		mult = behavior.DefaultThresholds().DeviationMultiplier
	}

	deviation := func(patternID string, value, threshold float64) {
		if threshold <= 0 || value <= mult*threshold {
			return
		}
		severity := behavior.SeverityHigh
		if value > (mult+1)*threshold {
			severity = behavior.SeverityCritical
		}
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      patternID,
			Type:           behavior.AnomalyDeviation,
			Severity:       severity,
			DeviationScore: value / threshold,
			Confidence:     confidenceDeviation,
			Context: map[string]interface{}{
				"value":     value,
				"threshold": threshold,
			},
			Timestamp: now,
		})
	}

	deviation("temporal:activity_frequency", features.Temporal.ActivityFrequency, baseline.ActivityThreshold)
	deviation("temporal:session_duration", features.Temporal.AvgSessionDuration, baseline.AvgSessionDuration)
	deviation("spatial:ip_diversity", float64(features.Spatial.SourceIPDiversity), baseline.IPDiversityLimit)
	deviation("frequency:error_rate", features.Frequency.ErrorRate, baseline.ErrorRateThreshold)

	found = append(found, d.timing(profile, features, now)...)

	// Geographic spread beyond the baseline is novel territory, not a scaled
	// deviation; the raw spread value is the deviation score.
	if baseline.GeographicThreshold > 0 && features.Spatial.GeographicSpread > baseline.GeographicThreshold {
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "spatial:geographic_spread",
			Type:           behavior.AnomalyNovelty,
			Severity:       behavior.SeverityHigh,
			DeviationScore: features.Spatial.GeographicSpread,
			Confidence:     confidenceNovelty,
			Context: map[string]interface{}{
				"value":     features.Spatial.GeographicSpread,
				"threshold": baseline.GeographicThreshold,
			},
			Timestamp: now,
		})
	}

	return found
}

// timing applies the special-cased temporal rules.
func (d *StatisticalDetector) timing(profile *behavior.Profile, features *behavior.Features, now time.Time) []behavior.Anomaly {
	var found []behavior.Anomaly
	baseline := profile.Baseline

	noveltyCut := profile.Thresholds.NoveltyTimeOfDay
	if noveltyCut <= 0 {
		noveltyCut = behavior.DefaultThresholds().NoveltyTimeOfDay
	}
	lowFloor := profile.Thresholds.LowRegularityFloor
	if lowFloor <= 0 {
		lowFloor = behavior.DefaultThresholds().LowRegularityFloor
	}

	// Time-of-day preference past the novelty cut is flagged regardless of
	// baseline; past the baseline but under the cut it is a low deviation.
	tod := features.Temporal.TimeOfDayPreference
	switch {
	case tod > noveltyCut:
		severity := behavior.SeverityMedium
		if tod > 0.9 {
			severity = behavior.SeverityHigh
		}
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "temporal:time_of_day",
			Type:           behavior.AnomalyNovelty,
			Severity:       severity,
			DeviationScore: tod,
			Confidence:     confidenceNovelty,
			Context:        map[string]interface{}{"value": tod},
			Timestamp:      now,
		})
	case baseline.TimeOfDayThreshold > 0 && tod > baseline.TimeOfDayThreshold:
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "temporal:time_of_day",
			Type:           behavior.AnomalyDeviation,
			Severity:       behavior.SeverityLow,
			DeviationScore: tod,
			Confidence:     confidenceLowSignal,
			Context: map[string]interface{}{
				"value":     tod,
				"threshold": baseline.TimeOfDayThreshold,
			},
			Timestamp: now,
		})
	}

	if reg := features.Temporal.SessionRegularity; reg < lowFloor {
		found = append(found, behavior.Anomaly{
			ID:             uuid.New(),
			UserID:         profile.UserID,
			PatternID:      "temporal:session_regularity",
			Type:           behavior.AnomalyDeviation,
			Severity:       behavior.SeverityLow,
			DeviationScore: lowFloor - reg,
			Confidence:     confidenceLowSignal,
			Context:        map[string]interface{}{"value": reg, "floor": lowFloor},
			Timestamp:      now,
		})
	}

	return found
}
