package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	domainerrors "github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/profile"
)

// profileRepository implements profile.ProfileStore using PostgreSQL
type profileRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewProfileRepository creates a new behavior profile repository
func NewProfileRepository(db *sql.DB) profile.ProfileStore {
	return &profileRepository{
		db:     db,
		tracer: telemetry.Tracer("behavioral-threat-engine/repository"),
	}
}

// GetProfile retrieves the live profile for an identity
func (r *profileRepository) GetProfile(ctx context.Context, userID string) (_ *behavior.Profile, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "select", "behavior_profiles")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	query := `
		SELECT
			user_id, profile_id, patterns, risk_indicators,
			baseline, thresholds, confidence_score, last_updated
		FROM behavior_profiles
		WHERE user_id = $1
	`

	var p behavior.Profile
	var patternsJSON, indicatorsJSON, baselineJSON, thresholdsJSON []byte

	err = r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.ProfileID, &patternsJSON, &indicatorsJSON,
		&baselineJSON, &thresholdsJSON, &p.ConfidenceScore, &p.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if err := json.Unmarshal(patternsJSON, &p.Patterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patterns: %w", err)
	}
	if err := json.Unmarshal(indicatorsJSON, &p.RiskIndicators); err != nil {
		p.RiskIndicators = nil
	}
	if err := json.Unmarshal(baselineJSON, &p.Baseline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal baseline: %w", err)
	}
	if err := json.Unmarshal(thresholdsJSON, &p.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
	}

	return &p, nil
}

// UpsertProfile replaces the identity's stored profile wholesale.
func (r *profileRepository) UpsertProfile(ctx context.Context, p *behavior.Profile) (err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "upsert", "behavior_profiles")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	patternsJSON, err := json.Marshal(p.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}
	indicatorsJSON, err := json.Marshal(p.RiskIndicators)
	if err != nil {
		return fmt.Errorf("failed to marshal risk indicators: %w", err)
	}
	baselineJSON, err := json.Marshal(p.Baseline)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	thresholdsJSON, err := json.Marshal(p.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	query := `
		INSERT INTO behavior_profiles (
			user_id, profile_id, patterns, risk_indicators,
			baseline, thresholds, confidence_score, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			profile_id = EXCLUDED.profile_id,
			patterns = EXCLUDED.patterns,
			risk_indicators = EXCLUDED.risk_indicators,
			baseline = EXCLUDED.baseline,
			thresholds = EXCLUDED.thresholds,
			confidence_score = EXCLUDED.confidence_score,
			last_updated = EXCLUDED.last_updated
	`

	_, err = r.db.ExecContext(ctx, query,
		p.UserID, p.ProfileID, patternsJSON, indicatorsJSON,
		baselineJSON, thresholdsJSON, p.ConfidenceScore, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
