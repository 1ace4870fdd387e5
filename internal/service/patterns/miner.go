package patterns

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
)

// Config bounds the mining passes. Zero values fall back to the defaults.
type Config struct {
	MinSupport       float64 // fraction of sequences, default 0.1
	MinPatternLength int     // default 2
	MaxPatternLength int     // default 10
	MinConfidence    float64 // strict lower bound, default 0.5
}

func (c Config) withDefaults() Config {
	if c.MinSupport <= 0 {
		c.MinSupport = 0.1
	}
	if c.MinPatternLength <= 0 {
		c.MinPatternLength = 2
	}
	if c.MaxPatternLength <= 0 {
		c.MaxPatternLength = 10
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.5
	}
	return c
}

// candidate is an intermediate mined sub-sequence before filtering
type candidate struct {
	pattern    []string
	support    float64
	confidence float64
}

// Miner mines frequent action sub-sequences with two complementary
// strategies, prefix-projection growth and vertical id-list enumeration, and
// unions their output.
type Miner struct {
	cfg Config
}

// NewMiner creates a pattern miner.
func NewMiner(cfg Config) *Miner {
	return &Miner{cfg: cfg.withDefaults()}
}

// Sequences groups an event batch into ordered action sequences, one per
// session. Events without a session id share a per-day fallback bucket.
func Sequences(events []event.SecurityEvent) [][]string {
	buckets := make(map[string][]event.SecurityEvent)
	order := make([]string, 0)
	for i := range events {
		key := events[i].SessionID
		if key == "" {
			key = "day:" + events[i].Timestamp.Format("2006-01-02")
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], events[i])
	}

	sequences := make([][]string, 0, len(order))
	for _, key := range order {
		batch := buckets[key]
		sort.Slice(batch, func(i, j int) bool { return batch[i].Timestamp.Before(batch[j].Timestamp) })
		seq := make([]string, len(batch))
		for i := range batch {
			seq[i] = batch[i].Action()
		}
		sequences = append(sequences, seq)
	}
	return sequences
}

// Mine runs both mining strategies over the sequences, merges and filters the
// results, and computes per-pattern stability. Output order is unspecified;
// callers rank.
func (m *Miner) Mine(sequences [][]string) []behavior.Pattern {
	if len(sequences) == 0 {
		return nil
	}

	merged := make(map[string]candidate)
	for _, c := range m.prefixSpan(sequences) {
		merge(merged, c)
	}
	for _, c := range m.spade(sequences) {
		merge(merged, c)
	}

	now := time.Now()
	patterns := make([]behavior.Pattern, 0, len(merged))
	for _, c := range merged {
		if len(c.pattern) < m.cfg.MinPatternLength {
			continue
		}
		if c.confidence <= m.cfg.MinConfidence {
			continue
		}

		containing, occurrences := countOccurrences(sequences, c.pattern)
		patterns = append(patterns, behavior.Pattern{
			ID:   uuid.New(),
			Type: behavior.PatternSequential,
			Data: behavior.PatternData{
				Sequence:   c.pattern,
				Support:    c.support,
				Occurrence: occurrences,
			},
			Confidence:   c.confidence,
			Frequency:    c.support,
			LastObserved: now,
			Stability:    float64(containing) / float64(len(sequences)),
		})
	}
	return patterns
}

func merge(into map[string]candidate, c candidate) {
	key := strings.Join(c.pattern, "\x1f")
	existing, ok := into[key]
	if !ok {
		into[key] = c
		return
	}
	// Both algorithms found it; keep the stronger estimate of each field.
	if c.support > existing.support {
		existing.support = c.support
	}
	if c.confidence > existing.confidence {
		existing.confidence = c.confidence
	}
	into[key] = existing
}

// countOccurrences returns how many sequences contain the pattern at least
// once, and the total non-overlapping occurrence count found by a greedy
// left-to-right scan.
func countOccurrences(sequences [][]string, pattern []string) (containing, total int) {
	for _, seq := range sequences {
		n := nonOverlapping(seq, pattern)
		if n > 0 {
			containing++
			total += n
		}
	}
	return containing, total
}

// nonOverlapping counts greedy non-overlapping subsequence matches of pattern
// within seq. Each element of seq is consumed by at most one match.
func nonOverlapping(seq, pattern []string) int {
	if len(pattern) == 0 {
		return 0
	}
	matches := 0
	idx := 0
	for i := 0; i < len(seq); i++ {
		if seq[i] == pattern[idx] {
			idx++
			if idx == len(pattern) {
				matches++
				idx = 0
			}
		}
	}
	return matches
}
