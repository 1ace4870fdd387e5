// Package privacy perturbs event data under differential-privacy noise before
// aggregate behavioral analysis, and enforces a per-identity privacy budget,
// refusing analysis once the budget is spent.
package privacy

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/patterns"
)

// Mechanism selects the noise distribution applied to perturbed values.
type Mechanism string

const (
	MechanismLaplace  Mechanism = "laplace"
	MechanismGaussian Mechanism = "gaussian"
)

// Config holds the differential-privacy parameters. Epsilon is the per-query
// privacy cost, Delta the failure probability for the Gaussian mechanism, and
// TotalBudget the epsilon an identity may consume before analysis is refused.
type Config struct {
	Epsilon     float64
	Delta       float64
	Sensitivity float64
	TotalBudget float64
	Mechanism   Mechanism
}

func (c Config) withDefaults() Config {
	if c.Epsilon <= 0 {
		c.Epsilon = 0.1
	}
	if c.Delta <= 0 {
		c.Delta = 1e-5
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = 1.0
	}
	if c.TotalBudget <= 0 {
		c.TotalBudget = 1.0
	}
	if c.Mechanism == "" {
		c.Mechanism = MechanismLaplace
	}
	return c
}

// FeatureExtractor computes behavioral features over an event batch.
type FeatureExtractor interface {
	Extract(events []event.SecurityEvent) behavior.Features
}

// PatternMiner mines recurring sequences from sessionized action sequences.
type PatternMiner interface {
	Mine(sequences [][]string) []behavior.Pattern
}

// Analysis is a privacy-preserving view of an identity's behavior: features
// and patterns computed over noise-perturbed event data, never raw events.
type Analysis struct {
	AnalysisID         uuid.UUID          `json:"analysis_id"`
	UserID             string             `json:"user_id"`
	PrivatizedFeatures behavior.Features  `json:"privatized_features"`
	Patterns           []behavior.Pattern `json:"behavioral_patterns"`
	Epsilon            float64            `json:"epsilon"`
	BudgetUsed         float64            `json:"budget_used"`
	BudgetRemaining    float64            `json:"budget_remaining"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// BudgetReport describes an identity's budget consumption.
type BudgetReport struct {
	UserID    string  `json:"user_id"`
	Total     float64 `json:"total"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
	Queries   int     `json:"queries"`
}

// Preserver runs the downstream extractor and miner over perturbed event
// copies under a per-identity epsilon ledger. Budget arithmetic runs on
// decimals so repeated spends of the same epsilon never drift: remaining is
// always total minus queries times epsilon, exactly.
type Preserver struct {
	cfg       Config
	extractor FeatureExtractor
	miner     PatternMiner
	logger    *zap.Logger

	mu      sync.Mutex
	spent   map[string]decimal.Decimal
	queries map[string]int
	rng     *rand.Rand
}

// NewPreserver creates a preserver with the given parameters and downstream
// collaborators.
func NewPreserver(cfg Config, extractor FeatureExtractor, miner PatternMiner, logger *zap.Logger) *Preserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preserver{
		cfg:       cfg.withDefaults(),
		extractor: extractor,
		miner:     miner,
		logger:    logger,
		spent:     make(map[string]decimal.Decimal),
		queries:   make(map[string]int),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Analyze perturbs the batch's numeric event fields, runs feature extraction
// and pattern mining over the perturbed copy, and releases the aggregate
// result, charging one epsilon to the identity's budget. Analysis fails
// closed: if the remaining budget does not cover the query, nothing is
// perturbed, nothing is released and nothing is charged.
func (p *Preserver) Analyze(ctx context.Context, userID string, events []event.SecurityEvent) (*Analysis, error) {
	if userID == "" {
		return nil, errors.ErrEmptyUserID
	}
	if len(events) == 0 {
		return nil, errors.ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eps := decimal.NewFromFloat(p.cfg.Epsilon)
	total := decimal.NewFromFloat(p.cfg.TotalBudget)

	p.mu.Lock()
	spent := p.spent[userID]
	if spent.Add(eps).GreaterThan(total) {
		p.mu.Unlock()
		p.logger.Warn("privacy budget exhausted",
			zap.String("user_id", userID),
			zap.String("spent", spent.String()))
		return nil, errors.NewBudgetExhaustedError("privacy budget exhausted for identity " + userID)
	}
	spent = spent.Add(eps)
	p.spent[userID] = spent
	p.queries[userID]++
	p.mu.Unlock()

	perturbed := p.perturbEvents(events)
	feats := p.extractor.Extract(perturbed)
	mined := p.miner.Mine(patterns.Sequences(perturbed))

	used, _ := spent.Float64()
	remaining, _ := total.Sub(spent).Float64()
	return &Analysis{
		AnalysisID:         uuid.New(),
		UserID:             userID,
		PrivatizedFeatures: feats,
		Patterns:           mined,
		Epsilon:            p.cfg.Epsilon,
		BudgetUsed:         used,
		BudgetRemaining:    remaining,
		GeneratedAt:        time.Now(),
	}, nil
}

// perturbEvents copies the batch and adds calibrated noise to the numeric
// event fields before any downstream computation sees them. The caller's
// slice is never mutated. Action tokens pass through unperturbed; they drive
// sequence shape and only aggregates over them are released.
func (p *Preserver) perturbEvents(events []event.SecurityEvent) []event.SecurityEvent {
	out := make([]event.SecurityEvent, len(events))
	copy(out, events)
	for i := range out {
		if out[i].ResponseTime > 0 {
			out[i].ResponseTime = math.Max(0, p.noise(out[i].ResponseTime))
		}
		if out[i].PayloadSize > 0 {
			out[i].PayloadSize = int64(math.Max(0, p.noise(float64(out[i].PayloadSize))))
		}
		jitter := time.Duration(p.noise(0) * float64(time.Second))
		out[i].Timestamp = out[i].Timestamp.Add(jitter)
	}
	return out
}

// Budget reports the identity's current budget state without charging it.
func (p *Preserver) Budget(userID string) BudgetReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := decimal.NewFromFloat(p.cfg.TotalBudget)
	spent := p.spent[userID]
	spentF, _ := spent.Float64()
	remF, _ := total.Sub(spent).Float64()
	return BudgetReport{
		UserID:    userID,
		Total:     p.cfg.TotalBudget,
		Spent:     spentF,
		Remaining: remF,
		Queries:   p.queries[userID],
	}
}

// Reallocate resets the identity's ledger, restoring the full budget. Used by
// operators on explicit data-subject consent renewal.
func (p *Preserver) Reallocate(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.spent, userID)
	delete(p.queries, userID)
	p.logger.Info("privacy budget reallocated", zap.String("user_id", userID))
}

// noise draws from the configured mechanism calibrated to sensitivity and
// epsilon (and delta for Gaussian) and adds it to the value.
func (p *Preserver) noise(value float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.cfg.Mechanism {
	case MechanismGaussian:
		sigma := p.cfg.Sensitivity * math.Sqrt(2*math.Log(1.25/p.cfg.Delta)) / p.cfg.Epsilon
		return value + p.rng.NormFloat64()*sigma
	default:
		scale := p.cfg.Sensitivity / p.cfg.Epsilon
		// Inverse-CDF sample of the Laplace distribution.
		u := p.rng.Float64() - 0.5
		return value - scale*sign(u)*math.Log(1-2*math.Abs(u))
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
