// Package profile orchestrates the analysis pipeline: profiling, detection,
// risk calculation, pattern mining, graph analysis and privacy-preserving
// release, over injected collaborators.
package profile

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/behavioral-threat-engine/internal/metrics"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/anomaly"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/patterns"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/privacy"
)

// Config bounds the manager's outputs and pacing.
type Config struct {
	// MaxAnomalies caps a detection response; MaxCachedAnomalies caps what
	// the cache holds for quick lookups.
	MaxAnomalies       int
	MaxCachedAnomalies int
	// ReprofileInterval throttles how often an existing profile is rebuilt.
	ReprofileInterval time.Duration
	// RiskHistoryDepth is how many stored scores feed trend and history.
	RiskHistoryDepth int
}

func (c Config) withDefaults() Config {
	if c.MaxAnomalies <= 0 {
		c.MaxAnomalies = anomaly.MaxRanked
	}
	if c.MaxCachedAnomalies <= 0 {
		c.MaxCachedAnomalies = anomaly.MaxCached
	}
	if c.ReprofileInterval <= 0 {
		c.ReprofileInterval = 5 * time.Minute
	}
	if c.RiskHistoryDepth <= 0 {
		c.RiskHistoryDepth = 10
	}
	return c
}

// Deps are the manager's injected collaborators. All are required except
// Metrics and Logger.
type Deps struct {
	Store   ProfileStore
	History HistoryStore
	Cache   Cache

	Extractor   FeatureExtractor
	Miner       PatternMiner
	Statistical StatisticalDetector
	Model       ModelDetector
	Risk        RiskCalculator
	Graph       GraphAnalyzer
	Privacy     PrivacyAnalyzer

	Metrics *metrics.Registry
	Logger  *zap.Logger
}

// Manager coordinates one identity analysis pipeline per call. All methods
// are safe for concurrent use; writes to the same identity serialize on a
// per-identity lock.
type Manager struct {
	cfg Config

	store   ProfileStore
	history HistoryStore
	cache   Cache

	extractor   FeatureExtractor
	miner       PatternMiner
	statistical StatisticalDetector
	model       ModelDetector
	risk        RiskCalculator
	graph       GraphAnalyzer
	privacy     PrivacyAnalyzer

	metrics *metrics.Registry
	logger  *zap.Logger
	tracer  trace.Tracer

	mu       sync.Mutex
	userLock map[string]*sync.Mutex
	limiter  map[string]*rate.Limiter
}

// NewManager wires the pipeline.
func NewManager(cfg Config, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg.withDefaults(),
		store:       deps.Store,
		history:     deps.History,
		cache:       deps.Cache,
		extractor:   deps.Extractor,
		miner:       deps.Miner,
		statistical: deps.Statistical,
		model:       deps.Model,
		risk:        deps.Risk,
		graph:       deps.Graph,
		privacy:     deps.Privacy,
		metrics:     deps.Metrics,
		logger:      logger,
		tracer:      telemetry.Tracer("behavioral-threat-engine/profile"),
		userLock:    make(map[string]*sync.Mutex),
		limiter:     make(map[string]*rate.Limiter),
	}
}

// CreateBehaviorProfile builds (or rebuilds) the identity's profile from the
// batch: feature extraction, pattern mining, baseline derivation, then a
// wholesale upsert. Rebuilds of an existing profile are throttled; a
// throttled call returns the stored profile untouched.
func (m *Manager) CreateBehaviorProfile(ctx context.Context, userID string, events []event.SecurityEvent) (_ *behavior.Profile, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "create_profile", userID)
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if userID == "" {
		return nil, errors.ErrEmptyUserID
	}
	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}

	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.loadProfile(ctx, userID)
	if err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil && !m.allowReprofile(userID) {
		m.logger.Debug("re-profiling throttled", zap.String("user_id", userID))
		return existing, nil
	}

	start := time.Now()
	feats := m.extractor.Extract(events)
	mined := m.miner.Mine(patterns.Sequences(events))

	p := &behavior.Profile{
		UserID:          userID,
		ProfileID:       uuid.New(),
		Patterns:        mined,
		Baseline:        deriveBaseline(&feats),
		Thresholds:      behavior.DefaultThresholds(),
		LastUpdated:     time.Now(),
		ConfidenceScore: profileConfidence(len(events), len(mined)),
	}
	if existing != nil {
		p.Thresholds = existing.Thresholds
	}

	if err := m.store.UpsertProfile(ctx, p); err != nil {
		return nil, errors.NewStoreUnavailableError("profile store", err)
	}
	// A wholesale rebuild supersedes everything cached for the identity.
	if err := m.cache.InvalidateUser(ctx, userID); err != nil {
		m.logger.Warn("cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
	if err := m.cache.SetProfile(ctx, p); err != nil {
		m.logger.Warn("profile cache write failed", zap.String("user_id", userID), zap.Error(err))
	}

	if m.metrics != nil {
		took := time.Since(start)
		m.metrics.RecordAnalysis(ctx, "create_profile", float64(took.Milliseconds()))
		m.metrics.RecordMining(ctx, float64(took.Milliseconds()), len(mined))
	}
	m.logger.Info("behavior profile built",
		zap.String("user_id", userID),
		zap.Int("events", len(events)),
		zap.Int("patterns", len(mined)),
		zap.Duration("took", time.Since(start)))
	return p, nil
}

// DetectAnomalies runs both detector families against the identity's profile,
// ranks and caps the merged findings, persists them, and caches the top slice
// for quick lookups.
func (m *Manager) DetectAnomalies(ctx context.Context, userID string, events []event.SecurityEvent) (_ *behavior.DetectionResult, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "detect_anomalies", userID)
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if userID == "" {
		return nil, errors.ErrEmptyUserID
	}
	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}

	p, err := m.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	feats := m.extractor.Extract(events)
	result := m.detect(ctx, p, &feats)
	if m.metrics != nil {
		m.metrics.RecordAnalysis(ctx, "detect_anomalies", float64(time.Since(start).Milliseconds()))
		for _, a := range result.Anomalies {
			m.metrics.RecordAnomaly(ctx, string(a.Severity))
		}
		if result.DegradedCoverage {
			m.metrics.RecordDegradedDetection(ctx)
		}
	}

	if len(result.Anomalies) > 0 {
		if err := m.history.AppendAnomalies(ctx, result.Anomalies); err != nil {
			return nil, errors.NewStoreUnavailableError("anomaly history", err)
		}
		cached := result.Anomalies
		if len(cached) > m.cfg.MaxCachedAnomalies {
			cached = cached[:m.cfg.MaxCachedAnomalies]
		}
		if err := m.cache.SetAnomalies(ctx, userID, cached); err != nil {
			m.logger.Warn("anomaly cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return result, nil
}

// CalculateBehavioralRisk runs a detection pass and fuses its findings with
// the profile, batch context and stored history into one risk score. The
// score is appended to history and cached.
func (m *Manager) CalculateBehavioralRisk(ctx context.Context, userID string, events []event.SecurityEvent) (_ *behavior.RiskScore, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "calculate_risk", userID)
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if userID == "" {
		return nil, errors.ErrEmptyUserID
	}
	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}

	p, err := m.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	feats := m.extractor.Extract(events)
	result := m.detect(ctx, p, &feats)

	score, err := m.risk.Calculate(ctx, p, &feats, result.Anomalies)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordRiskScore(ctx, score.Score)
	}
	if err := m.history.AppendRiskScore(ctx, score); err != nil {
		return nil, errors.NewStoreUnavailableError("risk history", err)
	}
	if err := m.cache.SetRiskScore(ctx, score); err != nil {
		m.logger.Warn("risk cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return score, nil
}

// MineBehavioralPatterns mines the batch without touching any profile.
func (m *Manager) MineBehavioralPatterns(ctx context.Context, events []event.SecurityEvent) (_ []behavior.Pattern, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "mine_patterns", "")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.miner.Mine(patterns.Sequences(events)), nil
}

// AnalyzeBehaviorGraph computes the activity graph for the batch.
func (m *Manager) AnalyzeBehaviorGraph(ctx context.Context, events []event.SecurityEvent) (_ *behavior.Graph, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "analyze_graph", "")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}
	return m.graph.Analyze(ctx, events)
}

// AnalyzeWithPrivacy perturbs the batch's event data and releases features
// and patterns computed over the perturbed copy, charging the identity's
// privacy budget.
func (m *Manager) AnalyzeWithPrivacy(ctx context.Context, userID string, events []event.SecurityEvent) (_ *privacy.Analysis, err error) {
	ctx, span := telemetry.StartAnalysisSpan(ctx, m.tracer, "analyze_with_privacy", userID)
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	if userID == "" {
		return nil, errors.ErrEmptyUserID
	}
	if err := event.ValidateBatch(events); err != nil {
		return nil, err
	}
	analysis, err := m.privacy.Analyze(ctx, userID, events)
	if err != nil {
		if m.metrics != nil && errors.IsType(err, errors.ErrorTypeBudgetExhausted) {
			m.metrics.RecordBudgetRefusal(ctx)
		}
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.SetBudgetRemaining(userID, analysis.BudgetRemaining)
	}
	return analysis, nil
}

// PrivacyBudget reports the identity's remaining analysis budget.
func (m *Manager) PrivacyBudget(userID string) privacy.BudgetReport {
	return m.privacy.Budget(userID)
}

// detect merges both detector families and ranks the result.
func (m *Manager) detect(ctx context.Context, p *behavior.Profile, feats *behavior.Features) *behavior.DetectionResult {
	findings := m.statistical.Detect(p, feats)
	modelFindings, degraded := m.model.Detect(ctx, p, feats)
	findings = append(findings, modelFindings...)
	return &behavior.DetectionResult{
		Anomalies:        anomaly.Rank(findings, m.cfg.MaxAnomalies),
		DegradedCoverage: degraded,
	}
}

// loadProfile reads through the cache to the store. A profile absent from
// both is a NotFound error.
func (m *Manager) loadProfile(ctx context.Context, userID string) (*behavior.Profile, error) {
	if p, err := m.cache.GetProfile(ctx, userID); err != nil {
		m.logger.Warn("profile cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if p != nil {
		return p, nil
	}

	p, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, err
		}
		return nil, errors.NewStoreUnavailableError("profile store", err)
	}
	if p == nil {
		return nil, errors.ErrProfileNotFound
	}
	if err := m.cache.SetProfile(ctx, p); err != nil {
		m.logger.Warn("profile cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return p, nil
}

func (m *Manager) lockFor(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLock[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLock[userID] = lock
	}
	return lock
}

func (m *Manager) allowReprofile(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiter[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.cfg.ReprofileInterval), 1)
		// The first token covers the initial build that already happened.
		lim.Allow()
		m.limiter[userID] = lim
	}
	return lim.Allow()
}

// SequentialThreshold is a reconstruction-error cut line on model scale; it
// is not derivable from one batch and stays at the trained default.
const reconstructionErrorBaseline = 0.1

// deriveBaseline turns observed features into detection thresholds. Floors
// keep a sparse first batch from producing hair-trigger baselines.
func deriveBaseline(f *behavior.Features) behavior.BaselineMetrics {
	return behavior.BaselineMetrics{
		AvgSessionDuration:  f.Temporal.AvgSessionDuration,
		TimeOfDayThreshold:  math.Max(f.Temporal.TimeOfDayPreference, 0.5),
		ActivityThreshold:   math.Max(f.Temporal.ActivityFrequency, 1),
		RegularityThreshold: f.Temporal.SessionRegularity,
		IPDiversityLimit:    math.Max(float64(f.Spatial.SourceIPDiversity), 1),
		GeographicThreshold: math.Max(f.Spatial.GeographicSpread, 0.5),
		SequentialThreshold: reconstructionErrorBaseline,
		ErrorRateThreshold:  math.Max(f.Frequency.ErrorRate, 0.05),
	}
}

// profileConfidence grows with evidence: event volume and mined structure.
func profileConfidence(eventCount, patternCount int) float64 {
	evidence := math.Min(1, float64(eventCount)/100.0)
	structure := math.Min(1, float64(patternCount)/10.0)
	return 0.3 + 0.5*evidence + 0.2*structure
}
