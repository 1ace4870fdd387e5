package profile

import (
	"context"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/privacy"
)

// ProfileStore persists the single live profile per identity. Upsert replaces
// the stored profile wholesale.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*behavior.Profile, error)
	UpsertProfile(ctx context.Context, p *behavior.Profile) error
}

// HistoryStore is the append-only record of detection findings and risk
// scores. Latest queries return newest first.
type HistoryStore interface {
	AppendAnomalies(ctx context.Context, anomalies []behavior.Anomaly) error
	AppendRiskScore(ctx context.Context, score *behavior.RiskScore) error
	LatestAnomalies(ctx context.Context, userID string, limit int) ([]behavior.Anomaly, error)
	LatestRiskScores(ctx context.Context, userID string, limit int) ([]behavior.RiskScore, error)
}

// Cache is the typed read-through cache in front of the stores. Misses return
// nil results with a nil error; cache failures are soft and never abort an
// analysis.
type Cache interface {
	GetProfile(ctx context.Context, userID string) (*behavior.Profile, error)
	SetProfile(ctx context.Context, p *behavior.Profile) error
	GetAnomalies(ctx context.Context, userID string) ([]behavior.Anomaly, error)
	SetAnomalies(ctx context.Context, userID string, anomalies []behavior.Anomaly) error
	GetRiskScore(ctx context.Context, userID string) (*behavior.RiskScore, error)
	SetRiskScore(ctx context.Context, score *behavior.RiskScore) error
	InvalidateUser(ctx context.Context, userID string) error
}

// FeatureExtractor turns an event batch into behavioral features.
type FeatureExtractor interface {
	Extract(events []event.SecurityEvent) behavior.Features
}

// PatternMiner mines recurring sequences from sessionized action sequences.
type PatternMiner interface {
	Mine(sequences [][]string) []behavior.Pattern
}

// StatisticalDetector runs the baseline-relative statistical checks.
type StatisticalDetector interface {
	Detect(profile *behavior.Profile, features *behavior.Features) []behavior.Anomaly
}

// ModelDetector runs the trained scorers. The bool reports degraded coverage
// when a scorer was unavailable.
type ModelDetector interface {
	Detect(ctx context.Context, profile *behavior.Profile, features *behavior.Features) ([]behavior.Anomaly, bool)
}

// RiskCalculator fuses component scores into one risk score.
type RiskCalculator interface {
	Calculate(ctx context.Context, profile *behavior.Profile, features *behavior.Features, anomalies []behavior.Anomaly) (*behavior.RiskScore, error)
}

// GraphAnalyzer computes the activity graph for a batch.
type GraphAnalyzer interface {
	Analyze(ctx context.Context, events []event.SecurityEvent) (*behavior.Graph, error)
}

// PrivacyAnalyzer perturbs event data and releases budget-charged analyses
// computed over the perturbed copy.
type PrivacyAnalyzer interface {
	Analyze(ctx context.Context, userID string, events []event.SecurityEvent) (*privacy.Analysis, error)
	Budget(userID string) privacy.BudgetReport
}
