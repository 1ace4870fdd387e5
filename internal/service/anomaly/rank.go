package anomaly

import (
	"sort"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
)

// Ranking caps: analysis responses keep the top 20, cache writes the top 10.
const (
	MaxRanked = 20
	MaxCached = 10
)

const minRankedConfidence = 0.6

// Rank filters, deduplicates and orders raw detector findings: findings at
// confidence 0.6 or below drop first, then entries sharing a (patternID,
// type) pair collapse to their first surviving occurrence, and the rest sort
// by severity rank descending with confidence descending as tie-break,
// truncated to limit. A dropped finding never consumes a dedupe key.
func Rank(anomalies []behavior.Anomaly, limit int) []behavior.Anomaly {
	type dedupeKey struct {
		patternID string
		kind      behavior.AnomalyType
	}
	seen := make(map[dedupeKey]struct{}, len(anomalies))
	ranked := make([]behavior.Anomaly, 0, len(anomalies))

	for _, a := range anomalies {
		if a.Confidence <= minRankedConfidence {
			continue
		}
		key := dedupeKey{patternID: a.PatternID, kind: a.Type}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ranked = append(ranked, a)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].Severity.Rank(), ranked[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return ranked[i].Confidence > ranked[j].Confidence
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
