package patterns

import "math"

// prefixSpan mines frequent sub-sequences by recursive prefix projection: the
// projected database of a prefix holds each sequence's suffix after the first
// occurrence of the prefix's last item, and items frequent within it extend
// the prefix by one.
func (m *Miner) prefixSpan(sequences [][]string) []candidate {
	n := len(sequences)
	minCount := int(math.Ceil(m.cfg.MinSupport * float64(n)))
	if minCount < 1 {
		minCount = 1
	}

	var out []candidate
	var grow func(prefix []string, projected [][]string, prefixSupport float64)
	grow = func(prefix []string, projected [][]string, prefixSupport float64) {
		if len(prefix) >= m.cfg.MaxPatternLength {
			return
		}

		// Presence count per item across projected suffixes.
		counts := make(map[string]int)
		for _, suffix := range projected {
			seen := make(map[string]struct{})
			for _, item := range suffix {
				if _, dup := seen[item]; dup {
					continue
				}
				seen[item] = struct{}{}
				counts[item]++
			}
		}

		for item, count := range counts {
			if count < minCount {
				continue
			}

			extended := make([]string, len(prefix)+1)
			copy(extended, prefix)
			extended[len(prefix)] = item

			support := float64(count) / float64(n)
			confidence := 1.0
			if prefixSupport > 0 {
				confidence = support / prefixSupport
			}
			out = append(out, candidate{pattern: extended, support: support, confidence: confidence})

			// Project: suffix after the first occurrence of item.
			next := make([][]string, 0, count)
			for _, suffix := range projected {
				for i, tok := range suffix {
					if tok == item {
						if i+1 < len(suffix) {
							next = append(next, suffix[i+1:])
						}
						break
					}
				}
			}
			grow(extended, next, support)
		}
	}

	grow(nil, sequences, 1.0)
	return out
}
