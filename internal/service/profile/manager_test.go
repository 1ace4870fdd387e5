package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	domainerrors "github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/privacy"
	"github.com/davidleathers/behavioral-threat-engine/internal/testutil/fixtures"
)

type managerMocks struct {
	store       *mockProfileStore
	history     *mockHistoryStore
	cache       *mockCache
	extractor   *mockExtractor
	miner       *mockMiner
	statistical *mockStatistical
	model       *mockModel
	risk        *mockRisk
	graph       *mockGraph
	privacy     *mockPrivacy
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *managerMocks) {
	t.Helper()
	m := &managerMocks{
		store:       &mockProfileStore{},
		history:     &mockHistoryStore{},
		cache:       &mockCache{},
		extractor:   &mockExtractor{},
		miner:       &mockMiner{},
		statistical: &mockStatistical{},
		model:       &mockModel{},
		risk:        &mockRisk{},
		graph:       &mockGraph{},
		privacy:     &mockPrivacy{},
	}
	mgr := NewManager(cfg, Deps{
		Store:       m.store,
		History:     m.history,
		Cache:       m.cache,
		Extractor:   m.extractor,
		Miner:       m.miner,
		Statistical: m.statistical,
		Model:       m.model,
		Risk:        m.risk,
		Graph:       m.graph,
		Privacy:     m.privacy,
	})
	return mgr, m
}

func storedProfile(userID string) *behavior.Profile {
	return &behavior.Profile{
		UserID:     userID,
		ProfileID:  uuid.New(),
		Thresholds: behavior.DefaultThresholds(),
	}
}

func finding(userID string, sev behavior.Severity, conf float64) behavior.Anomaly {
	return behavior.Anomaly{
		ID:         uuid.New(),
		UserID:     userID,
		PatternID:  "pattern:" + string(sev),
		Type:       behavior.AnomalyDeviation,
		Severity:   sev,
		Confidence: conf,
		Timestamp:  time.Now(),
	}
}

func TestManager_CreateBehaviorProfile(t *testing.T) {
	ctx := context.Background()
	batch := fixtures.SessionBatch(t, "user-1", 3, []string{"/login", "/reports"})

	t.Run("empty user id is invalid input", func(t *testing.T) {
		mgr, _ := newTestManager(t, Config{})

		_, err := mgr.CreateBehaviorProfile(ctx, "", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("empty batch is invalid input", func(t *testing.T) {
		mgr, _ := newTestManager(t, Config{})

		_, err := mgr.CreateBehaviorProfile(ctx, "user-1", nil)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("builds and upserts a fresh profile", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		mined := []behavior.Pattern{{ID: uuid.New(), Type: behavior.PatternSequential}}

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, domainerrors.ErrProfileNotFound)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.miner.On("Mine", mock.Anything).Return(mined)
		m.store.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("InvalidateUser", mock.Anything, "user-1").Return(nil)
		m.cache.On("SetProfile", mock.Anything, mock.Anything).Return(nil)

		p, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
		assert.NotEqual(t, uuid.Nil, p.ProfileID)
		assert.Equal(t, mined, p.Patterns)
		assert.Equal(t, behavior.DefaultThresholds(), p.Thresholds)
		assert.False(t, p.LastUpdated.IsZero())
		// Baseline floors hold even for sparse feature input.
		assert.GreaterOrEqual(t, p.Baseline.ActivityThreshold, 1.0)
		assert.GreaterOrEqual(t, p.Baseline.GeographicThreshold, 0.5)
		assert.GreaterOrEqual(t, p.Baseline.ErrorRateThreshold, 0.05)
		assert.GreaterOrEqual(t, p.Baseline.IPDiversityLimit, 1.0)
		assert.Equal(t, 0.1, p.Baseline.SequentialThreshold)
		assert.GreaterOrEqual(t, p.ConfidenceScore, 0.3)
		assert.LessOrEqual(t, p.ConfidenceScore, 1.0)
		m.store.AssertExpectations(t)
	})

	t.Run("upsert failure surfaces as store unavailable", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, domainerrors.ErrProfileNotFound)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.miner.On("Mine", mock.Anything).Return(nil)
		m.store.On("UpsertProfile", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		_, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeStoreUnavailable))
	})

	t.Run("cache write failure does not fail the build", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, domainerrors.ErrProfileNotFound)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.miner.On("Mine", mock.Anything).Return(nil)
		m.store.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("InvalidateUser", mock.Anything, "user-1").Return(nil)
		m.cache.On("SetProfile", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		_, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		assert.NoError(t, err)
	})

	t.Run("cache invalidation failure does not fail the build", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, domainerrors.ErrProfileNotFound)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.miner.On("Mine", mock.Anything).Return(nil)
		m.store.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("InvalidateUser", mock.Anything, "user-1").Return(errors.New("redis down"))
		m.cache.On("SetProfile", mock.Anything, mock.Anything).Return(nil)

		_, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		assert.NoError(t, err)
	})

	t.Run("throttled rebuild returns the stored profile untouched", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{ReprofileInterval: time.Hour})
		existing := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(existing, nil)

		p, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Same(t, existing, p)
		m.store.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything)
	})

	t.Run("rebuild proceeds once the interval elapses", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{ReprofileInterval: time.Millisecond})
		existing := storedProfile("user-1")
		existing.Thresholds.DeviationMultiplier = 3.5

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(existing, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.miner.On("Mine", mock.Anything).Return(nil)
		m.store.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("InvalidateUser", mock.Anything, "user-1").Return(nil)
		m.cache.On("SetProfile", mock.Anything, mock.Anything).Return(nil)

		// First rebuild consumes the limiter token minted for the build that
		// produced the stored profile.
		_, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		p, err := mgr.CreateBehaviorProfile(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.NotSame(t, existing, p)
		// Tuned thresholds survive re-profiling.
		assert.Equal(t, 3.5, p.Thresholds.DeviationMultiplier)
		// The rebuild dropped every stale cached artifact for the identity.
		m.cache.AssertCalled(t, "InvalidateUser", mock.Anything, "user-1")
		m.store.AssertExpectations(t)
	})
}

func TestManager_DetectAnomalies(t *testing.T) {
	ctx := context.Background()
	batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/login"})

	t.Run("missing profile propagates not found", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, domainerrors.ErrProfileNotFound)

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
	})

	t.Run("merges both detector families and persists ranked findings", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")
		statFindings := []behavior.Anomaly{finding("user-1", behavior.SeverityMedium, 0.75)}
		modelFindings := []behavior.Anomaly{finding("user-1", behavior.SeverityCritical, 0.9)}

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(statFindings)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(modelFindings, false)
		m.history.On("AppendAnomalies", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("SetAnomalies", mock.Anything, "user-1", mock.Anything).Return(nil)

		result, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		require.NoError(t, err)
		require.Len(t, result.Anomalies, 2)
		assert.Equal(t, behavior.SeverityCritical, result.Anomalies[0].Severity)
		assert.Equal(t, behavior.SeverityMedium, result.Anomalies[1].Severity)
		assert.False(t, result.DegradedCoverage)
		m.history.AssertExpectations(t)
	})

	t.Run("reports degraded coverage when scorers are unavailable", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, true)

		result, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Empty(t, result.Anomalies)
		assert.True(t, result.DegradedCoverage)
	})

	t.Run("clean pass skips history and cache", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		require.NoError(t, err)
		m.history.AssertNotCalled(t, "AppendAnomalies", mock.Anything, mock.Anything)
		m.cache.AssertNotCalled(t, "SetAnomalies", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("history append failure surfaces as store unavailable", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return([]behavior.Anomaly{finding("user-1", behavior.SeverityHigh, 0.8)})
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)
		m.history.On("AppendAnomalies", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeStoreUnavailable))
	})

	t.Run("caches at most the configured top slice", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{MaxAnomalies: 20, MaxCachedAnomalies: 2})
		p := storedProfile("user-1")
		var findings []behavior.Anomaly
		for i := 0; i < 5; i++ {
			f := finding("user-1", behavior.SeverityHigh, 0.8)
			f.PatternID = f.ID.String()
			findings = append(findings, f)
		}

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(findings)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)
		m.history.On("AppendAnomalies", mock.Anything, mock.Anything).Return(nil)
		m.cache.On("SetAnomalies", mock.Anything, "user-1", mock.MatchedBy(func(a []behavior.Anomaly) bool {
			return len(a) == 2
		})).Return(nil)

		result, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Len(t, result.Anomalies, 5)
		m.cache.AssertExpectations(t)
	})
}

func TestManager_CalculateBehavioralRisk(t *testing.T) {
	ctx := context.Background()
	batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/login"})

	t.Run("fuses detection findings and persists the score", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")
		score := &behavior.RiskScore{UserID: "user-1", Score: 0.42, Trend: behavior.TrendStable}

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)
		m.risk.On("Calculate", mock.Anything, p, mock.Anything, mock.Anything).Return(score, nil)
		m.history.On("AppendRiskScore", mock.Anything, score).Return(nil)
		m.cache.On("SetRiskScore", mock.Anything, score).Return(nil)

		got, err := mgr.CalculateBehavioralRisk(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Same(t, score, got)
		m.history.AssertExpectations(t)
	})

	t.Run("history append failure surfaces as store unavailable", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")
		score := &behavior.RiskScore{UserID: "user-1", Score: 0.42}

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)
		m.risk.On("Calculate", mock.Anything, p, mock.Anything, mock.Anything).Return(score, nil)
		m.history.On("AppendRiskScore", mock.Anything, score).Return(errors.New("connection refused"))

		_, err := mgr.CalculateBehavioralRisk(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeStoreUnavailable))
	})

	t.Run("calculator failure propagates", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)
		m.risk.On("Calculate", mock.Anything, p, mock.Anything, mock.Anything).
			Return(nil, domainerrors.NewStoreUnavailableError("risk history", errors.New("down")))

		_, err := mgr.CalculateBehavioralRisk(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeStoreUnavailable))
	})
}

func TestManager_MineBehavioralPatterns(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is invalid input", func(t *testing.T) {
		mgr, _ := newTestManager(t, Config{})

		_, err := mgr.MineBehavioralPatterns(ctx, nil)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("mines sessionized sequences without touching any profile", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		batch := fixtures.SessionBatch(t, "user-1", 2, []string{"/login", "/reports"})
		mined := []behavior.Pattern{{ID: uuid.New()}}

		m.miner.On("Mine", mock.MatchedBy(func(seqs [][]string) bool {
			return len(seqs) == 2 && len(seqs[0]) == 2
		})).Return(mined)

		got, err := mgr.MineBehavioralPatterns(ctx, batch)

		require.NoError(t, err)
		assert.Equal(t, mined, got)
		m.store.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	})
}

func TestManager_AnalyzeBehaviorGraph(t *testing.T) {
	ctx := context.Background()
	mgr, m := newTestManager(t, Config{})
	batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/login"})
	g := &behavior.Graph{ID: uuid.New()}

	m.graph.On("Analyze", mock.Anything, batch).Return(g, nil)

	got, err := mgr.AnalyzeBehaviorGraph(ctx, batch)

	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestManager_AnalyzeWithPrivacy(t *testing.T) {
	ctx := context.Background()
	batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/reports"})

	t.Run("empty user id is invalid input", func(t *testing.T) {
		mgr, _ := newTestManager(t, Config{})

		_, err := mgr.AnalyzeWithPrivacy(ctx, "", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("empty batch is invalid input", func(t *testing.T) {
		mgr, _ := newTestManager(t, Config{})

		_, err := mgr.AnalyzeWithPrivacy(ctx, "user-1", nil)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("delegates the batch for perturbed analysis", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		analysis := &privacy.Analysis{UserID: "user-1", BudgetRemaining: 0.9}

		m.privacy.On("Analyze", mock.Anything, "user-1", batch).Return(analysis, nil)

		got, err := mgr.AnalyzeWithPrivacy(ctx, "user-1", batch)

		require.NoError(t, err)
		assert.Same(t, analysis, got)
		// Privacy analysis runs over events, never stored profile state.
		m.store.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
		m.history.AssertNotCalled(t, "LatestRiskScores", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("budget exhaustion propagates", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.privacy.On("Analyze", mock.Anything, "user-1", batch).
			Return(nil, domainerrors.NewBudgetExhaustedError("spent"))

		_, err := mgr.AnalyzeWithPrivacy(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeBudgetExhausted))
	})
}

func TestManager_PrivacyBudget(t *testing.T) {
	mgr, m := newTestManager(t, Config{})
	report := privacy.BudgetReport{UserID: "user-1", Total: 1, Remaining: 0.5}

	m.privacy.On("Budget", "user-1").Return(report)

	assert.Equal(t, report, mgr.PrivacyBudget("user-1"))
}

func TestDeriveBaseline(t *testing.T) {
	t.Run("observed diversity becomes the ip limit", func(t *testing.T) {
		f := behavior.Features{}
		f.Spatial.SourceIPDiversity = 4

		b := deriveBaseline(&f)

		assert.Equal(t, 4.0, b.IPDiversityLimit)
	})

	t.Run("sparse batches keep the floors", func(t *testing.T) {
		b := deriveBaseline(&behavior.Features{})

		assert.Equal(t, 1.0, b.IPDiversityLimit)
		assert.Equal(t, 0.5, b.GeographicThreshold)
		assert.Equal(t, 0.05, b.ErrorRateThreshold)
	})

	t.Run("sequence entropy never sets the reconstruction cut line", func(t *testing.T) {
		f := behavior.Features{}
		f.Sequential.SequenceEntropy = 2.0

		b := deriveBaseline(&f)

		// The threshold is on reconstruction-error scale; an entropy-sized
		// value would push model anomalies out of reach.
		assert.Equal(t, 0.1, b.SequentialThreshold)
	})
}

func TestManager_LoadProfile(t *testing.T) {
	ctx := context.Background()
	batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/login"})

	t.Run("cache hit skips the store", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		require.NoError(t, err)
		m.store.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	})

	t.Run("cache read failure falls through to the store", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})
		p := storedProfile("user-1")

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, errors.New("redis down"))
		m.store.On("GetProfile", mock.Anything, "user-1").Return(p, nil)
		m.cache.On("SetProfile", mock.Anything, p).Return(nil)
		m.extractor.On("Extract", batch).Return(behavior.Features{})
		m.statistical.On("Detect", p, mock.Anything).Return(nil)
		m.model.On("Detect", mock.Anything, p, mock.Anything).Return(nil, false)

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		assert.NoError(t, err)
	})

	t.Run("store failure surfaces as store unavailable", func(t *testing.T) {
		mgr, m := newTestManager(t, Config{})

		m.cache.On("GetProfile", mock.Anything, "user-1").Return(nil, nil)
		m.store.On("GetProfile", mock.Anything, "user-1").Return(nil, errors.New("connection refused"))

		_, err := mgr.DetectAnomalies(ctx, "user-1", batch)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeStoreUnavailable))
	})
}

// Mocks

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) GetProfile(ctx context.Context, userID string) (*behavior.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*behavior.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileStore) UpsertProfile(ctx context.Context, p *behavior.Profile) error {
	return m.Called(ctx, p).Error(0)
}

type mockHistoryStore struct {
	mock.Mock
}

func (m *mockHistoryStore) AppendAnomalies(ctx context.Context, anomalies []behavior.Anomaly) error {
	return m.Called(ctx, anomalies).Error(0)
}

func (m *mockHistoryStore) AppendRiskScore(ctx context.Context, score *behavior.RiskScore) error {
	return m.Called(ctx, score).Error(0)
}

func (m *mockHistoryStore) LatestAnomalies(ctx context.Context, userID string, limit int) ([]behavior.Anomaly, error) {
	args := m.Called(ctx, userID, limit)
	if a := args.Get(0); a != nil {
		return a.([]behavior.Anomaly), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistoryStore) LatestRiskScores(ctx context.Context, userID string, limit int) ([]behavior.RiskScore, error) {
	args := m.Called(ctx, userID, limit)
	if s := args.Get(0); s != nil {
		return s.([]behavior.RiskScore), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetProfile(ctx context.Context, userID string) (*behavior.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*behavior.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCache) SetProfile(ctx context.Context, p *behavior.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockCache) GetAnomalies(ctx context.Context, userID string) ([]behavior.Anomaly, error) {
	args := m.Called(ctx, userID)
	if a := args.Get(0); a != nil {
		return a.([]behavior.Anomaly), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCache) SetAnomalies(ctx context.Context, userID string, anomalies []behavior.Anomaly) error {
	return m.Called(ctx, userID, anomalies).Error(0)
}

func (m *mockCache) GetRiskScore(ctx context.Context, userID string) (*behavior.RiskScore, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*behavior.RiskScore), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCache) SetRiskScore(ctx context.Context, score *behavior.RiskScore) error {
	return m.Called(ctx, score).Error(0)
}

func (m *mockCache) InvalidateUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(events []event.SecurityEvent) behavior.Features {
	return m.Called(events).Get(0).(behavior.Features)
}

type mockMiner struct {
	mock.Mock
}

func (m *mockMiner) Mine(sequences [][]string) []behavior.Pattern {
	if p := m.Called(sequences).Get(0); p != nil {
		return p.([]behavior.Pattern)
	}
	return nil
}

type mockStatistical struct {
	mock.Mock
}

func (m *mockStatistical) Detect(profile *behavior.Profile, features *behavior.Features) []behavior.Anomaly {
	if a := m.Called(profile, features).Get(0); a != nil {
		return a.([]behavior.Anomaly)
	}
	return nil
}

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Detect(ctx context.Context, profile *behavior.Profile, features *behavior.Features) ([]behavior.Anomaly, bool) {
	args := m.Called(ctx, profile, features)
	if a := args.Get(0); a != nil {
		return a.([]behavior.Anomaly), args.Bool(1)
	}
	return nil, args.Bool(1)
}

type mockRisk struct {
	mock.Mock
}

func (m *mockRisk) Calculate(ctx context.Context, profile *behavior.Profile, features *behavior.Features, anomalies []behavior.Anomaly) (*behavior.RiskScore, error) {
	args := m.Called(ctx, profile, features, anomalies)
	if s := args.Get(0); s != nil {
		return s.(*behavior.RiskScore), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockGraph struct {
	mock.Mock
}

func (m *mockGraph) Analyze(ctx context.Context, events []event.SecurityEvent) (*behavior.Graph, error) {
	args := m.Called(ctx, events)
	if g := args.Get(0); g != nil {
		return g.(*behavior.Graph), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPrivacy struct {
	mock.Mock
}

func (m *mockPrivacy) Analyze(ctx context.Context, userID string, events []event.SecurityEvent) (*privacy.Analysis, error) {
	args := m.Called(ctx, userID, events)
	if a := args.Get(0); a != nil {
		return a.(*privacy.Analysis), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPrivacy) Budget(userID string) privacy.BudgetReport {
	return m.Called(userID).Get(0).(privacy.BudgetReport)
}
