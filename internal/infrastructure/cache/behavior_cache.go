package cache

import (
	"context"
	"errors"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// BehaviorCache is the typed cache for analysis artifacts. Misses surface as
// nil results with a nil error so callers fall through to the store.
type BehaviorCache struct {
	cache Cache
}

// NewBehaviorCache wraps the generic cache with behavior-typed accessors.
func NewBehaviorCache(cache Cache) *BehaviorCache {
	return &BehaviorCache{cache: cache}
}

func (c *BehaviorCache) GetProfile(ctx context.Context, userID string) (*behavior.Profile, error) {
	var p behavior.Profile
	if err := c.cache.GetJSON(ctx, ProfilePrefix+userID, &p); err != nil {
		return nil, ignoreMiss(err)
	}
	return &p, nil
}

func (c *BehaviorCache) SetProfile(ctx context.Context, p *behavior.Profile) error {
	return c.cache.SetJSON(ctx, ProfilePrefix+p.UserID, p, ProfileTTL)
}

func (c *BehaviorCache) GetAnomalies(ctx context.Context, userID string) ([]behavior.Anomaly, error) {
	var anomalies []behavior.Anomaly
	if err := c.cache.GetJSON(ctx, AnomalyPrefix+userID, &anomalies); err != nil {
		return nil, ignoreMiss(err)
	}
	return anomalies, nil
}

func (c *BehaviorCache) SetAnomalies(ctx context.Context, userID string, anomalies []behavior.Anomaly) error {
	return c.cache.SetJSON(ctx, AnomalyPrefix+userID, anomalies, AnomalyTTL)
}

func (c *BehaviorCache) GetRiskScore(ctx context.Context, userID string) (*behavior.RiskScore, error) {
	var score behavior.RiskScore
	if err := c.cache.GetJSON(ctx, RiskPrefix+userID, &score); err != nil {
		return nil, ignoreMiss(err)
	}
	return &score, nil
}

func (c *BehaviorCache) SetRiskScore(ctx context.Context, score *behavior.RiskScore) error {
	return c.cache.SetJSON(ctx, RiskPrefix+score.UserID, score, RiskTTL)
}

// InvalidateUser drops every cached artifact for the identity, used after a
// wholesale profile replacement.
func (c *BehaviorCache) InvalidateUser(ctx context.Context, userID string) error {
	for _, key := range []string{ProfilePrefix + userID, AnomalyPrefix + userID, RiskPrefix + userID} {
		if err := c.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func ignoreMiss(err error) error {
	var miss ErrCacheKeyNotFound
	if errors.As(err, &miss) {
		return nil
	}
	return err
}
