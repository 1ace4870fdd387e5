package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/profile"
)

// historyRepository implements profile.HistoryStore using PostgreSQL. Both
// tables are append-only; rows are never updated.
type historyRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewHistoryRepository creates a new detection history repository
func NewHistoryRepository(db *sql.DB) profile.HistoryStore {
	return &historyRepository{
		db:     db,
		tracer: telemetry.Tracer("behavioral-threat-engine/repository"),
	}
}

// AppendAnomalies inserts the findings in one transaction.
func (r *historyRepository) AppendAnomalies(ctx context.Context, anomalies []behavior.Anomaly) (err error) {
	if len(anomalies) == 0 {
		return nil
	}

	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "insert", "behavior_anomalies")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO behavior_anomalies (
			anomaly_id, user_id, pattern_id, anomaly_type, severity,
			deviation_score, confidence, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, a := range anomalies {
		contextJSON, err := json.Marshal(a.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly context: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.UserID, a.PatternID, a.Type, a.Severity,
			a.DeviationScore, a.Confidence, contextJSON, a.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to insert anomaly: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit anomalies: %w", err)
	}
	return nil
}

// AppendRiskScore inserts one fused score.
func (r *historyRepository) AppendRiskScore(ctx context.Context, score *behavior.RiskScore) (err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "insert", "risk_scores")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	factorsJSON, err := json.Marshal(score.ContributingFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	query := `
		INSERT INTO risk_scores (
			user_id, score, confidence, contributing_factors, trend, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		score.UserID, score.Score, score.Confidence, factorsJSON, score.Trend, score.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert risk score: %w", err)
	}
	return nil
}

// LatestAnomalies returns the identity's newest findings first.
func (r *historyRepository) LatestAnomalies(ctx context.Context, userID string, limit int) (_ []behavior.Anomaly, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "select", "behavior_anomalies")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	query := `
		SELECT
			anomaly_id, user_id, pattern_id, anomaly_type, severity,
			deviation_score, confidence, context, created_at
		FROM behavior_anomalies
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []behavior.Anomaly
	for rows.Next() {
		var a behavior.Anomaly
		var contextJSON []byte
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.PatternID, &a.Type, &a.Severity,
			&a.DeviationScore, &a.Confidence, &contextJSON, &a.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &a.Context); err != nil {
				a.Context = nil
			}
		}
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate anomalies: %w", err)
	}
	return anomalies, nil
}

// LatestRiskScores returns the identity's newest scores first.
func (r *historyRepository) LatestRiskScores(ctx context.Context, userID string, limit int) (_ []behavior.RiskScore, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, r.tracer, "select", "risk_scores")
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
	}()

	query := `
		SELECT user_id, score, confidence, contributing_factors, trend, created_at
		FROM risk_scores
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk scores: %w", err)
	}
	defer rows.Close()

	var scores []behavior.RiskScore
	for rows.Next() {
		var s behavior.RiskScore
		var factorsJSON []byte
		if err := rows.Scan(
			&s.UserID, &s.Score, &s.Confidence, &factorsJSON, &s.Trend, &s.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk score: %w", err)
		}
		if len(factorsJSON) > 0 {
			if err := json.Unmarshal(factorsJSON, &s.ContributingFactors); err != nil {
				s.ContributingFactors = nil
			}
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk scores: %w", err)
	}
	return scores, nil
}
