package patterns

import "math"

// occurrence locates one item hit in the vertical database
type occurrence struct {
	seq int
	pos int
}

// spade mines frequent sub-sequences from a vertical representation: per-item
// occurrence lists of (sequence, position). Candidate k-sequences extend a
// frequent (k-1)-sequence with a frequent item.
//
// Support of a candidate is approximated from the unique sequence-id coverage
// of its LAST item's id-list, not a full temporal intersection of all item
// lists. The approximation is conservative (it never under-counts) and kept
// deliberately; extension candidates are grounded by requiring at least one
// real subsequence match before they are emitted or grown.
func (m *Miner) spade(sequences [][]string) []candidate {
	n := len(sequences)
	minCount := int(math.Ceil(m.cfg.MinSupport * float64(n)))
	if minCount < 1 {
		minCount = 1
	}

	idLists := make(map[string][]occurrence)
	for si, seq := range sequences {
		for pi, item := range seq {
			idLists[item] = append(idLists[item], occurrence{seq: si, pos: pi})
		}
	}

	coverage := make(map[string]int, len(idLists))
	for item, occs := range idLists {
		seen := make(map[int]struct{})
		for _, o := range occs {
			seen[o.seq] = struct{}{}
		}
		coverage[item] = len(seen)
	}

	frequentItems := make([]string, 0, len(coverage))
	for item, cov := range coverage {
		if cov >= minCount {
			frequentItems = append(frequentItems, item)
		}
	}

	var out []candidate

	// Level 1
	level := make([]candidate, 0, len(frequentItems))
	for _, item := range frequentItems {
		c := candidate{
			pattern:    []string{item},
			support:    float64(coverage[item]) / float64(n),
			confidence: 1.0,
		}
		level = append(level, c)
		out = append(out, c)
	}

	// Levels 2..max: join each frequent (k-1)-sequence with each frequent item.
	for k := 2; k <= m.cfg.MaxPatternLength && len(level) > 0; k++ {
		next := make([]candidate, 0)
		for _, parent := range level {
			for _, item := range frequentItems {
				support := float64(coverage[item]) / float64(n)
				if support < m.cfg.MinSupport {
					continue
				}

				extended := make([]string, len(parent.pattern)+1)
				copy(extended, parent.pattern)
				extended[len(parent.pattern)] = item

				if !occursAnywhere(sequences, extended) {
					continue
				}

				confidence := 1.0
				if parent.support > 0 {
					confidence = support / parent.support
					if confidence > 1.0 {
						confidence = 1.0
					}
				}
				c := candidate{pattern: extended, support: support, confidence: confidence}
				next = append(next, c)
				out = append(out, c)
			}
		}
		level = next
	}
	return out
}

// occursAnywhere reports whether pattern appears as a subsequence of at least
// one source sequence.
func occursAnywhere(sequences [][]string, pattern []string) bool {
	for _, seq := range sequences {
		if nonOverlapping(seq, pattern) > 0 {
			return true
		}
	}
	return false
}
