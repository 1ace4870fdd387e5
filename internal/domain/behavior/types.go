package behavior

import (
	"time"

	"github.com/google/uuid"
)

// PatternType classifies a mined behavioral pattern
type PatternType string

const (
	PatternTemporal   PatternType = "temporal"
	PatternSpatial    PatternType = "spatial"
	PatternSequential PatternType = "sequential"
	PatternFrequency  PatternType = "frequency"
)

// PatternData holds the mined payload of a pattern
type PatternData struct {
	Sequence   []string `json:"sequence,omitempty"`
	Support    float64  `json:"support"`    // fraction of sequences containing the pattern, <= 1
	Occurrence int      `json:"occurrence"` // raw occurrence count across all sequences
}

// Pattern is a mined recurring behavior. Patterns are superseded, never
// mutated, on re-mining.
type Pattern struct {
	ID           uuid.UUID   `json:"pattern_id"`
	Type         PatternType `json:"pattern_type"`
	Data         PatternData `json:"pattern_data"`
	Confidence   float64     `json:"confidence"` // [0,1]
	Frequency    float64     `json:"frequency"`  // [0,1]
	LastObserved time.Time   `json:"last_observed"`
	Stability    float64     `json:"stability"` // [0,1], fraction of sequences containing it
}

// BaselineMetrics are numeric thresholds derived from historical behavior,
// read-only for detectors between re-profiling passes.
type BaselineMetrics struct {
	AvgSessionDuration  float64 `json:"avg_session_duration_s"`
	TimeOfDayThreshold  float64 `json:"time_of_day_threshold"`
	ActivityThreshold   float64 `json:"activity_threshold"`
	RegularityThreshold float64 `json:"regularity_threshold"`
	IPDiversityLimit    float64 `json:"ip_diversity_limit"`
	GeographicThreshold float64 `json:"geographic_threshold"`
	SequentialThreshold float64 `json:"sequential_threshold"`
	ErrorRateThreshold  float64 `json:"error_rate_threshold"`
}

// Thresholds groups the anomaly cut lines a profile carries. A profile must
// have these set before any detector runs against it.
type Thresholds struct {
	DeviationMultiplier float64 `json:"deviation_multiplier"` // high at 2x, critical at 3x
	NoveltyTimeOfDay    float64 `json:"novelty_time_of_day"`  // default 0.8
	LowRegularityFloor  float64 `json:"low_regularity_floor"` // default 0.3
}

// DefaultThresholds returns the detection cut lines applied when a profile is
// created without explicit overrides.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DeviationMultiplier: 2.0,
		NoveltyTimeOfDay:    0.8,
		LowRegularityFloor:  0.3,
	}
}

// Profile is the durable per-identity behavior summary used as a detection
// baseline. One live profile per identity; replaced wholesale on re-profiling.
type Profile struct {
	UserID          string          `json:"user_id"`
	ProfileID       uuid.UUID       `json:"profile_id"`
	Patterns        []Pattern       `json:"behavioral_patterns"`
	RiskIndicators  []string        `json:"risk_indicators,omitempty"`
	Baseline        BaselineMetrics `json:"baseline_metrics"`
	Thresholds      Thresholds      `json:"anomaly_thresholds"`
	LastUpdated     time.Time       `json:"last_updated"`
	ConfidenceScore float64         `json:"confidence_score"` // [0,1]
}

// AnomalyType classifies how a finding deviates from the baseline
type AnomalyType string

const (
	AnomalyDeviation AnomalyType = "deviation"
	AnomalyNovelty   AnomalyType = "novelty"
	AnomalyOutlier   AnomalyType = "outlier"
)

// Severity levels for anomalies
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering weight of a severity: critical 4 down to low 1.
// Unknown severities rank 0 and sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Anomaly is a transient detector finding, ranked and capped before any
// persistence.
type Anomaly struct {
	ID             uuid.UUID              `json:"anomaly_id"`
	UserID         string                 `json:"user_id"`
	PatternID      string                 `json:"pattern_id"`
	Type           AnomalyType            `json:"anomaly_type"`
	Severity       Severity               `json:"severity"`
	DeviationScore float64                `json:"deviation_score"` // >= 0
	Confidence     float64                `json:"confidence"`      // [0,1]
	Context        map[string]interface{} `json:"context,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Trend classifies risk movement against the previous stored score
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// RiskFactor is one weighted component of a fused risk score
type RiskFactor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`  // [0,1]
	Weight float64 `json:"weight"` // fixed fusion weight
}

// RiskScore is the fused output of one analysis invocation
type RiskScore struct {
	UserID              string       `json:"user_id"`
	Score               float64      `json:"score"`      // [0,1]
	Confidence          float64      `json:"confidence"` // [0,1]
	ContributingFactors []RiskFactor `json:"contributing_factors"`
	Trend               Trend        `json:"trend"`
	Timestamp           time.Time    `json:"timestamp"`
}

// DetectionResult carries the ranked findings of one detection pass.
// DegradedCoverage is set when the trained scorers were unavailable and only
// statistical checks ran.
type DetectionResult struct {
	Anomalies        []Anomaly `json:"anomalies"`
	DegradedCoverage bool      `json:"degraded_coverage"`
}
