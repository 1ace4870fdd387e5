package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
)

const (
	businessHoursStart = 9
	businessHoursEnd   = 17
)

// Extractor converts a raw event batch into the five behavioral feature
// families. It is a pure function of the batch; an empty batch yields zeroed
// features, never an error.
type Extractor struct {
	geo Geolocator
}

// NewExtractor creates a feature extractor with the given geolocator. A nil
// geolocator disables geographic resolution; spatial spread then derives from
// IP diversity alone.
func NewExtractor(geo Geolocator) *Extractor {
	return &Extractor{geo: geo}
}

// Extract computes behavioral features over an ordered event batch.
func (e *Extractor) Extract(events []event.SecurityEvent) behavior.Features {
	if len(events) == 0 {
		return behavior.Features{}
	}

	return behavior.Features{
		Temporal:   e.temporal(events),
		Spatial:    e.spatial(events),
		Sequential: e.sequential(events),
		Frequency:  e.frequency(events),
		Contextual: e.contextual(events),
	}
}

func (e *Extractor) temporal(events []event.SecurityEvent) behavior.TemporalFeatures {
	t := behavior.TemporalFeatures{
		ActivityFrequency: float64(len(events)),
	}

	minTS, maxTS := events[0].Timestamp, events[0].Timestamp
	hourSum := 0.0
	times := make([]time.Time, 0, len(events))
	latencies := make([]float64, 0, len(events))

	for i := range events {
		ts := events[i].Timestamp
		if ts.Before(minTS) {
			minTS = ts
		}
		if ts.After(maxTS) {
			maxTS = ts
		}
		hourSum += float64(ts.Hour())
		t.DayOfWeekHistogram[int(ts.Weekday())]++
		times = append(times, ts)
		if events[i].ResponseTime > 0 {
			latencies = append(latencies, events[i].ResponseTime)
		}
	}

	t.AvgSessionDuration = maxTS.Sub(minTS).Seconds()
	t.TimeOfDayPreference = hourSum / float64(len(events)) / 24.0
	t.SessionRegularity = regularity(times)
	t.ResponseTimePattern = responseTimings(latencies)
	return t
}

// regularity maps inter-event interval variance onto [0,1]: a steady cadence
// scores near 1, bursty or erratic activity scores lower.
func regularity(times []time.Time) float64 {
	if len(times) < 3 {
		return 1.0
	}
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Seconds())
	}

	mean := stat.Mean(intervals, nil)
	if mean <= 0 {
		return 1.0
	}
	cv := math.Sqrt(stat.Variance(intervals, nil)) / mean
	return 1.0 / (1.0 + cv)
}

func responseTimings(latencies []float64) behavior.ResponseTimings {
	if len(latencies) == 0 {
		return behavior.ResponseTimings{}
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	return behavior.ResponseTimings{
		Mean:   stat.Mean(sorted, nil),
		StdDev: math.Sqrt(stat.Variance(sorted, nil)),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

func (e *Extractor) spatial(events []event.SecurityEvent) behavior.SpatialFeatures {
	ips := make(map[string]struct{})
	countries := make(map[string]int)
	asns := make(map[string]int)
	private := 0
	located := 0

	// Location transitions in batch order drive the mobility estimate.
	var lastCountry string
	transitions := 0

	for i := range events {
		ip := events[i].SourceIP
		if ip == "" {
			continue
		}
		ips[ip] = struct{}{}

		if e.geo == nil {
			continue
		}
		loc, ok := e.geo.Locate(ip)
		if !ok {
			continue
		}
		located++
		if loc.Private {
			private++
			continue
		}
		if loc.Country != "" {
			countries[loc.Country]++
			if lastCountry != "" && loc.Country != lastCountry {
				transitions++
			}
			lastCountry = loc.Country
		}
		if loc.ASN != "" {
			asns[loc.ASN]++
		}
	}

	s := behavior.SpatialFeatures{
		SourceIPDiversity: len(ips),
		Networks: behavior.NetworkProfile{
			Countries: countries,
			ASNs:      asns,
		},
	}
	if located > 0 {
		s.Networks.PrivateRatio = float64(private) / float64(located)
	}

	// Spread grows with distinct locations: 1 location -> 0, 2 -> 0.5,
	// 10 -> 0.9. Falls back to IP diversity when geolocation is off.
	distinct := len(countries)
	if distinct == 0 {
		distinct = len(ips)
	}
	if distinct > 0 {
		s.GeographicSpread = 1.0 - 1.0/float64(distinct)
	}
	if len(events) > 1 {
		s.MobilityPattern = float64(transitions) / float64(len(events)-1)
	}
	return s
}

func (e *Extractor) sequential(events []event.SecurityEvent) behavior.SequentialFeatures {
	actions := make([]string, len(events))
	counts := make(map[string]int)
	for i := range events {
		actions[i] = events[i].Action()
		counts[actions[i]]++
	}

	transitions := make(map[string]map[string]float64)
	outTotals := make(map[string]int)
	for i := 1; i < len(actions); i++ {
		from, to := actions[i-1], actions[i]
		if transitions[from] == nil {
			transitions[from] = make(map[string]float64)
		}
		transitions[from][to]++
		outTotals[from]++
	}
	for from, row := range transitions {
		total := float64(outTotals[from])
		for to := range row {
			row[to] /= total
		}
	}

	return behavior.SequentialFeatures{
		Actions:         actions,
		Transitions:     transitions,
		SequenceEntropy: shannonEntropy(counts, len(actions)),
		UniqueActions:   len(counts),
	}
}

// shannonEntropy computes entropy in bits over the action distribution.
func shannonEntropy(counts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func (e *Extractor) frequency(events []event.SecurityEvent) behavior.FrequencyFeatures {
	f := behavior.FrequencyFeatures{
		ByEndpoint:     make(map[string]int),
		ByMethod:       make(map[string]int),
		ByResponseCode: make(map[int]int),
	}
	errs := 0
	for i := range events {
		if events[i].Endpoint != "" {
			f.ByEndpoint[events[i].Endpoint]++
		}
		if events[i].Method != "" {
			f.ByMethod[events[i].Method]++
		}
		if events[i].ResponseCode != 0 {
			f.ByResponseCode[events[i].ResponseCode]++
			if events[i].ResponseCode >= 400 {
				errs++
			}
		}
	}
	f.ErrorRate = float64(errs) / float64(len(events))
	return f
}

func (e *Extractor) contextual(events []event.SecurityEvent) behavior.ContextualFeatures {
	c := behavior.ContextualFeatures{}

	businessHours := 0
	weekend := 0
	for i := range events {
		ts := events[i].Timestamp
		if h := ts.Hour(); h >= businessHoursStart && h < businessHoursEnd {
			businessHours++
		}
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		if isHoliday(ts) {
			c.HolidayActivity = true
		}
		if c.DeviceSignature == "" && events[i].UserAgent != "" {
			c.DeviceSignature = events[i].UserAgent
			c.OS, c.Browser = parseUserAgent(events[i].UserAgent)
		}
		if c.Country == "" && e.geo != nil && events[i].SourceIP != "" {
			if loc, ok := e.geo.Locate(events[i].SourceIP); ok && !loc.Private {
				c.Country = loc.Country
				c.ASN = loc.ASN
				c.ISP = loc.ISP
			}
		}
	}

	c.BusinessHoursRatio = float64(businessHours) / float64(len(events))
	c.WeekendRatio = float64(weekend) / float64(len(events))
	c.Timezone = events[0].Timestamp.Location().String()
	return c
}

// isHoliday flags the fixed-date holidays observed across locales. Regional
// holiday calendars belong upstream.
func isHoliday(ts time.Time) bool {
	switch {
	case ts.Month() == time.January && ts.Day() == 1:
		return true
	case ts.Month() == time.December && ts.Day() == 25:
		return true
	}
	return false
}

// parseUserAgent pulls a coarse OS/browser signature out of a user agent
// string. Fingerprinting beyond this belongs upstream.
func parseUserAgent(ua string) (os, browser string) {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "windows"):
		os = "windows"
	case strings.Contains(lower, "mac os") || strings.Contains(lower, "macintosh"):
		os = "macos"
	case strings.Contains(lower, "android"):
		os = "android"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ios"):
		os = "ios"
	case strings.Contains(lower, "linux"):
		os = "linux"
	}
	switch {
	case strings.Contains(lower, "edg/"):
		browser = "edge"
	case strings.Contains(lower, "chrome"):
		browser = "chrome"
	case strings.Contains(lower, "firefox"):
		browser = "firefox"
	case strings.Contains(lower, "safari"):
		browser = "safari"
	case strings.Contains(lower, "curl"):
		browser = "curl"
	}
	return os, browser
}
