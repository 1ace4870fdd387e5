package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the engine's domain metrics
type Registry struct {
	meter metric.Meter

	// Analysis pipeline metrics
	AnalysisDuration  metric.Float64Histogram
	AnalysisCounter   metric.Int64Counter
	DegradedDetection metric.Int64Counter

	// Detection metrics
	AnomalyCounter metric.Int64Counter
	RiskScore      metric.Float64Histogram

	// Mining metrics
	MiningDuration metric.Float64Histogram
	PatternsMined  metric.Int64Counter

	// Privacy metrics
	BudgetRemaining metric.Float64ObservableGauge
	BudgetRefusals  metric.Int64Counter

	// State for observable metrics
	mu        sync.RWMutex
	remaining map[string]float64
}

// NewRegistry creates a metrics registry on the named meter
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{
		meter:     otel.Meter(meterName),
		remaining: make(map[string]float64),
	}
	if err := r.initAnalysisMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initPrivacyMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initAnalysisMetrics() error {
	var err error

	r.AnalysisDuration, err = r.meter.Float64Histogram(
		"bte.analysis.duration",
		metric.WithDescription("Duration of one analysis operation in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.AnalysisCounter, err = r.meter.Int64Counter(
		"bte.analysis.total",
		metric.WithDescription("Completed analysis operations"),
	)
	if err != nil {
		return err
	}

	r.DegradedDetection, err = r.meter.Int64Counter(
		"bte.detection.degraded_total",
		metric.WithDescription("Detection passes that ran without model coverage"),
	)
	if err != nil {
		return err
	}

	r.MiningDuration, err = r.meter.Float64Histogram(
		"bte.mining.duration",
		metric.WithDescription("Duration of one pattern mining pass in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 10, 50, 100, 500, 1000, 10000),
	)
	if err != nil {
		return err
	}

	r.PatternsMined, err = r.meter.Int64Counter(
		"bte.mining.patterns_total",
		metric.WithDescription("Patterns emitted by mining passes"),
	)
	return err
}

func (r *Registry) initDetectionMetrics() error {
	var err error

	r.AnomalyCounter, err = r.meter.Int64Counter(
		"bte.detection.anomalies_total",
		metric.WithDescription("Ranked anomalies by severity"),
	)
	if err != nil {
		return err
	}

	r.RiskScore, err = r.meter.Float64Histogram(
		"bte.risk.score",
		metric.WithDescription("Fused risk score distribution"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9),
	)
	return err
}

func (r *Registry) initPrivacyMetrics() error {
	var err error

	r.BudgetRemaining, err = r.meter.Float64ObservableGauge(
		"bte.privacy.budget_remaining",
		metric.WithDescription("Remaining privacy budget per identity"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			for userID, remaining := range r.remaining {
				o.Observe(remaining, metric.WithAttributes(attribute.String("user_id", userID)))
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.BudgetRefusals, err = r.meter.Int64Counter(
		"bte.privacy.refusals_total",
		metric.WithDescription("Analyses refused on an exhausted budget"),
	)
	return err
}

// RecordAnalysis records one completed operation with its duration.
func (r *Registry) RecordAnalysis(ctx context.Context, operation string, durationMS float64) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	r.AnalysisCounter.Add(ctx, 1, attrs)
	r.AnalysisDuration.Record(ctx, durationMS, attrs)
}

// RecordAnomaly counts one ranked finding by severity.
func (r *Registry) RecordAnomaly(ctx context.Context, severity string) {
	r.AnomalyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

// RecordMining records one mining pass.
func (r *Registry) RecordMining(ctx context.Context, durationMS float64, patterns int) {
	r.MiningDuration.Record(ctx, durationMS)
	r.PatternsMined.Add(ctx, int64(patterns))
}

// RecordRiskScore records one fused score.
func (r *Registry) RecordRiskScore(ctx context.Context, score float64) {
	r.RiskScore.Record(ctx, score)
}

// SetBudgetRemaining updates the observed budget for an identity.
func (r *Registry) SetBudgetRemaining(userID string, remaining float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining[userID] = remaining
}

// RecordBudgetRefusal counts one fail-closed refusal.
func (r *Registry) RecordBudgetRefusal(ctx context.Context) {
	r.BudgetRefusals.Add(ctx, 1)
}

// RecordDegradedDetection counts one detection pass without model coverage.
func (r *Registry) RecordDegradedDetection(ctx context.Context) {
	r.DegradedDetection.Add(ctx, 1)
}
