package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
	"github.com/davidleathers/behavioral-threat-engine/internal/testutil/fixtures"
)

func TestExtractor_Extract(t *testing.T) {
	t.Run("empty batch yields zeroed features", func(t *testing.T) {
		feats := NewExtractor(nil).Extract(nil)

		assert.Zero(t, feats.Temporal.ActivityFrequency)
		assert.Zero(t, feats.Spatial.SourceIPDiversity)
		assert.Zero(t, feats.Sequential.SequenceEntropy)
		assert.Zero(t, feats.Contextual.BusinessHoursRatio)
	})

	t.Run("activity and session span follow the batch", func(t *testing.T) {
		base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithTimestamp(base).Build(),
			fixtures.NewEventBuilder(t).WithTimestamp(base.Add(5 * time.Minute)).Build(),
			fixtures.NewEventBuilder(t).WithTimestamp(base.Add(10 * time.Minute)).Build(),
		}

		feats := NewExtractor(nil).Extract(batch)

		assert.Equal(t, 3.0, feats.Temporal.ActivityFrequency)
		assert.InDelta(t, 600, feats.Temporal.AvgSessionDuration, 1e-9)
		assert.InDelta(t, 10.0/24.0, feats.Temporal.TimeOfDayPreference, 1e-2)
	})

	t.Run("fewer than three events score perfectly regular", func(t *testing.T) {
		batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/a", "/b"})

		feats := NewExtractor(nil).Extract(batch)

		assert.Equal(t, 1.0, feats.Temporal.SessionRegularity)
	})

	t.Run("steady cadence scores more regular than bursts", func(t *testing.T) {
		base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
		steady := make([]event.SecurityEvent, 6)
		bursty := make([]event.SecurityEvent, 6)
		burstOffsets := []time.Duration{0, time.Second, 2 * time.Second, time.Hour, time.Hour + time.Second, 3 * time.Hour}
		for i := 0; i < 6; i++ {
			steady[i] = fixtures.NewEventBuilder(t).WithTimestamp(base.Add(time.Duration(i) * time.Minute)).Build()
			bursty[i] = fixtures.NewEventBuilder(t).WithTimestamp(base.Add(burstOffsets[i])).Build()
		}
		e := NewExtractor(nil)

		assert.Greater(t, e.Extract(steady).Temporal.SessionRegularity, e.Extract(bursty).Temporal.SessionRegularity)
		assert.InDelta(t, 1.0, e.Extract(steady).Temporal.SessionRegularity, 1e-9, "uniform intervals have zero variance")
	})

	t.Run("spatial diversity counts distinct sources", func(t *testing.T) {
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithSourceIP("203.0.113.10").Build(),
			fixtures.NewEventBuilder(t).WithSourceIP("203.0.113.10").Build(),
			fixtures.NewEventBuilder(t).WithSourceIP("198.51.100.7").Build(),
		}

		feats := NewExtractor(nil).Extract(batch)

		assert.Equal(t, 2, feats.Spatial.SourceIPDiversity)
		// Without geolocation, spread falls back to IP diversity: 1 - 1/2.
		assert.InDelta(t, 0.5, feats.Spatial.GeographicSpread, 1e-9)
	})

	t.Run("geolocation drives spread, mobility and network profile", func(t *testing.T) {
		geo := NewStaticGeolocator(map[string]Location{
			"203.0.113":  {Country: "US", ASN: "AS64500", ISP: "ExampleNet"},
			"198.51.100": {Country: "DE", ASN: "AS64501"},
		})
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithSourceIP("203.0.113.10").Build(),
			fixtures.NewEventBuilder(t).WithSourceIP("198.51.100.7").Build(),
			fixtures.NewEventBuilder(t).WithSourceIP("203.0.113.11").Build(),
		}

		feats := NewExtractor(geo).Extract(batch)

		assert.InDelta(t, 0.5, feats.Spatial.GeographicSpread, 1e-9, "two countries")
		assert.InDelta(t, 1.0, feats.Spatial.MobilityPattern, 1e-9, "every step changed country")
		assert.Equal(t, 2, feats.Spatial.Networks.Countries["US"])
		assert.Equal(t, 1, feats.Spatial.Networks.Countries["DE"])
		assert.Equal(t, "US", feats.Contextual.Country)
		assert.Equal(t, "AS64500", feats.Contextual.ASN)
	})

	t.Run("private sources never leak into the network profile", func(t *testing.T) {
		geo := NewStaticGeolocator(nil)
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithSourceIP("10.0.0.5").Build(),
			fixtures.NewEventBuilder(t).WithSourceIP("192.168.1.9").Build(),
		}

		feats := NewExtractor(geo).Extract(batch)

		assert.Empty(t, feats.Spatial.Networks.Countries)
		assert.InDelta(t, 1.0, feats.Spatial.Networks.PrivateRatio, 1e-9)
		assert.Empty(t, feats.Contextual.Country)
	})

	t.Run("sequence entropy reflects action variety", func(t *testing.T) {
		uniform := fixtures.SessionBatch(t, "user-1", 1, []string{"/a", "/a", "/a", "/a"})
		varied := fixtures.SessionBatch(t, "user-1", 1, []string{"/a", "/b", "/c", "/d"})
		e := NewExtractor(nil)

		assert.Zero(t, e.Extract(uniform).Sequential.SequenceEntropy)
		assert.InDelta(t, 2.0, e.Extract(varied).Sequential.SequenceEntropy, 1e-9, "four equiprobable actions are two bits")
		assert.Equal(t, 4, e.Extract(varied).Sequential.UniqueActions)
	})

	t.Run("transition rows are probability distributions", func(t *testing.T) {
		batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/a", "/b", "/a", "/c"})

		feats := NewExtractor(nil).Extract(batch)

		from := "resource_access:/a"
		row := feats.Sequential.Transitions[from]
		require.NotNil(t, row)
		total := 0.0
		for _, p := range row {
			total += p
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	})

	t.Run("error rate counts 4xx and 5xx responses", func(t *testing.T) {
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithResponseCode(200).Build(),
			fixtures.NewEventBuilder(t).WithResponseCode(403).Build(),
			fixtures.NewEventBuilder(t).WithResponseCode(500).Build(),
			fixtures.NewEventBuilder(t).WithResponseCode(201).Build(),
		}

		feats := NewExtractor(nil).Extract(batch)

		assert.InDelta(t, 0.5, feats.Frequency.ErrorRate, 1e-9)
		assert.Equal(t, 2, feats.Frequency.ByResponseCode[200]+feats.Frequency.ByResponseCode[201])
	})

	t.Run("contextual ratios split business hours and weekends", func(t *testing.T) {
		monday10 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
		monday22 := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
		saturday := time.Date(2025, 6, 7, 11, 0, 0, 0, time.UTC)
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithTimestamp(monday10).Build(),
			fixtures.NewEventBuilder(t).WithTimestamp(monday22).Build(),
			fixtures.NewEventBuilder(t).WithTimestamp(saturday).Build(),
		}

		feats := NewExtractor(nil).Extract(batch)

		assert.InDelta(t, 2.0/3.0, feats.Contextual.BusinessHoursRatio, 1e-9)
		assert.InDelta(t, 1.0/3.0, feats.Contextual.WeekendRatio, 1e-9)
		assert.False(t, feats.Contextual.HolidayActivity)
	})

	t.Run("holiday activity flags fixed-date holidays", func(t *testing.T) {
		christmas := time.Date(2025, 12, 25, 14, 0, 0, 0, time.UTC)
		batch := []event.SecurityEvent{
			fixtures.NewEventBuilder(t).WithTimestamp(christmas).Build(),
		}

		feats := NewExtractor(nil).Extract(batch)

		assert.True(t, feats.Contextual.HolidayActivity)
	})

	t.Run("device signature comes from the first user agent", func(t *testing.T) {
		batch := fixtures.SessionBatch(t, "user-1", 1, []string{"/a"})

		feats := NewExtractor(nil).Extract(batch)

		assert.Equal(t, "windows", feats.Contextual.OS)
		assert.Equal(t, "chrome", feats.Contextual.Browser)
	})
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		os      string
		browser string
	}{
		{"windows chrome", "Mozilla/5.0 (Windows NT 10.0) Chrome/125.0", "windows", "chrome"},
		{"mac safari", "Mozilla/5.0 (Macintosh; Intel Mac OS X) Safari/605.1", "macos", "safari"},
		{"edge beats chrome", "Mozilla/5.0 (Windows NT 10.0) Chrome/125.0 Edg/125.0", "windows", "edge"},
		{"curl", "curl/8.5.0", "", "curl"},
		{"unknown", "CustomAgent/1.0", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os, browser := parseUserAgent(tt.ua)
			assert.Equal(t, tt.os, os)
			assert.Equal(t, tt.browser, browser)
		})
	}
}

func TestStaticGeolocator_Locate(t *testing.T) {
	geo := NewStaticGeolocator(map[string]Location{
		"203.0.113": {Country: "US"},
		"198.51":    {Country: "DE"},
	})

	t.Run("matches the longest known prefix", func(t *testing.T) {
		loc, ok := geo.Locate("203.0.113.42")
		require.True(t, ok)
		assert.Equal(t, "US", loc.Country)

		loc, ok = geo.Locate("198.51.100.7")
		require.True(t, ok)
		assert.Equal(t, "DE", loc.Country)
	})

	t.Run("private and loopback resolve without the table", func(t *testing.T) {
		loc, ok := geo.Locate("192.168.0.1")
		require.True(t, ok)
		assert.True(t, loc.Private)

		loc, ok = geo.Locate("127.0.0.1")
		require.True(t, ok)
		assert.True(t, loc.Private)
	})

	t.Run("unknown and malformed addresses miss", func(t *testing.T) {
		_, ok := geo.Locate("8.8.8.8")
		assert.False(t, ok)

		_, ok = geo.Locate("not-an-ip")
		assert.False(t, ok)
	})
}
