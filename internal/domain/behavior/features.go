package behavior

// FeatureVectorDim is the fixed width of the flattened feature vector the
// trained scorers consume. Changing it invalidates deployed model artifacts.
const FeatureVectorDim = 16

// TemporalFeatures summarizes when the identity is active
type TemporalFeatures struct {
	AvgSessionDuration  float64         `json:"avg_session_duration_s"`
	TimeOfDayPreference float64         `json:"time_of_day_preference"` // mean hour / 24, [0,1]
	DayOfWeekHistogram  [7]int          `json:"day_of_week_histogram"`
	ActivityFrequency   float64         `json:"activity_frequency"`
	SessionRegularity   float64         `json:"session_regularity"` // [0,1], higher = steadier cadence
	ResponseTimePattern ResponseTimings `json:"response_time_pattern"`
}

// ResponseTimings captures the latency shape of the batch
type ResponseTimings struct {
	Mean   float64 `json:"mean_ms"`
	StdDev float64 `json:"stddev_ms"`
	P95    float64 `json:"p95_ms"`
}

// SpatialFeatures summarizes where activity originates
type SpatialFeatures struct {
	SourceIPDiversity int            `json:"source_ip_diversity"`
	GeographicSpread  float64        `json:"geographic_spread"` // [0,1]
	MobilityPattern   float64        `json:"mobility_pattern"`  // [0,1], location churn rate
	Networks          NetworkProfile `json:"networks"`
}

// NetworkProfile describes the network characteristics seen in a batch
type NetworkProfile struct {
	PrivateRatio float64        `json:"private_ratio"`
	Countries    map[string]int `json:"countries,omitempty"`
	ASNs         map[string]int `json:"asns,omitempty"`
}

// SequentialFeatures captures ordering behavior; computed once and shared
// with the pattern miner.
type SequentialFeatures struct {
	Actions         []string                      `json:"actions"`
	Transitions     map[string]map[string]float64 `json:"transitions,omitempty"`
	SequenceEntropy float64                       `json:"sequence_entropy"`
	UniqueActions   int                           `json:"unique_actions"`
}

// FrequencyFeatures counts activity per dimension
type FrequencyFeatures struct {
	ByEndpoint     map[string]int `json:"by_endpoint,omitempty"`
	ByMethod       map[string]int `json:"by_method,omitempty"`
	ByResponseCode map[int]int    `json:"by_response_code,omitempty"`
	ErrorRate      float64        `json:"error_rate"`
}

// ContextualFeatures captures device and environment context
type ContextualFeatures struct {
	DeviceSignature    string  `json:"device_signature,omitempty"`
	OS                 string  `json:"os,omitempty"`
	Browser            string  `json:"browser,omitempty"`
	Country            string  `json:"country,omitempty"`
	ASN                string  `json:"asn,omitempty"`
	ISP                string  `json:"isp,omitempty"`
	Timezone           string  `json:"timezone,omitempty"`
	BusinessHoursRatio float64 `json:"business_hours_ratio"`
	WeekendRatio       float64 `json:"weekend_ratio"`
	HolidayActivity    bool    `json:"holiday_activity"`
}

// Features is the derived, ephemeral view of one analysis batch. It is never
// persisted directly; only its summary lands in baselines.
type Features struct {
	Temporal   TemporalFeatures   `json:"temporal"`
	Spatial    SpatialFeatures    `json:"spatial"`
	Sequential SequentialFeatures `json:"sequential"`
	Frequency  FrequencyFeatures  `json:"frequency"`
	Contextual ContextualFeatures `json:"contextual"`
}

// Vector flattens the numeric features into the fixed-width vector the trained
// scorers consume. Order is part of the model artifact contract.
func (f *Features) Vector() []float64 {
	return []float64{
		f.Temporal.AvgSessionDuration,
		f.Temporal.TimeOfDayPreference,
		f.Temporal.ActivityFrequency,
		f.Temporal.SessionRegularity,
		f.Temporal.ResponseTimePattern.Mean,
		f.Temporal.ResponseTimePattern.StdDev,
		float64(f.Spatial.SourceIPDiversity),
		f.Spatial.GeographicSpread,
		f.Spatial.MobilityPattern,
		f.Spatial.Networks.PrivateRatio,
		f.Sequential.SequenceEntropy,
		float64(f.Sequential.UniqueActions),
		float64(len(f.Frequency.ByEndpoint)),
		f.Frequency.ErrorRate,
		f.Contextual.BusinessHoursRatio,
		f.Contextual.WeekendRatio,
	}
}
