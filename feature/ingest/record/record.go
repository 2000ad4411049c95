package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Type identifies a canonical record variant. The set is closed: the
// normalizer rejects anything it cannot map to one of these.
type Type string

const (
	TypeSleep       Type = "sleep"
	TypeReadiness   Type = "readiness"
	TypeActivity    Type = "activity"
	TypeHeartRate   Type = "heart_rate"
	TypeWorkout     Type = "workout"
	TypeTag         Type = "tag"
	TypeTemperature Type = "temperature"
)

// Source identifies record provenance.
type Source string

const (
	// SourceSyncedFeed marks records pulled from the live vendor API.
	SourceSyncedFeed Source = "synced_feed"
	// SourceArchiveImport marks records read from a bulk export archive.
	SourceArchiveImport Source = "archive_import"
)

// Key is the composite identity of a record in the store.
type Key struct {
	Type       Type   `json:"record_type"`
	NaturalKey string `json:"natural_key"`
}

// Payload is implemented by every canonical payload variant.
type Payload interface {
	// RecordType returns the variant this payload belongs to.
	RecordType() Type

	// NaturalKey derives the deterministic content-based key.
	NaturalKey() string

	// SubjectTime returns the point in time the payload describes.
	// Used as the tie-breaker when two equally complete payloads collide.
	SubjectTime() time.Time
}

// Canonical is the normalized, storage-ready representation of one metric
// fact. The store holds at most one Canonical per (Type, NaturalKey).
type Canonical struct {
	Type          Type      `json:"record_type"`
	NaturalKey    string    `json:"natural_key"`
	Payload       Payload   `json:"payload"`
	Source        Source    `json:"source"`
	SourceVersion string    `json:"source_version"`
	ImportedAt    time.Time `json:"imported_at"`
	ContentHash   string    `json:"content_hash"`
}

// Key returns the composite store identity of the record.
func (c Canonical) Key() Key {
	return Key{Type: c.Type, NaturalKey: c.NaturalKey}
}

// hashEnvelope fixes the field set and order the content hash covers.
// Provenance (source, source_version) and imported_at are deliberately absent.
type hashEnvelope struct {
	Type       Type    `json:"record_type"`
	NaturalKey string  `json:"natural_key"`
	Payload    Payload `json:"payload"`
}

// ContentHash computes the SHA-256 digest of the canonical JSON encoding of
// (type, natural key, payload). encoding/json emits struct fields in
// declaration order and map keys sorted, so the encoding is deterministic.
func ContentHash(t Type, naturalKey string, p Payload) (string, error) {
	data, err := json.Marshal(hashEnvelope{Type: t, NaturalKey: naturalKey, Payload: p})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Completeness counts the populated payload fields. Optional fields are
// pointers with omitempty, so the count falls out of the JSON encoding.
// Used by the reconciler and staging buffer: more populated fields wins.
func Completeness(p Payload) int {
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return 0
	}
	n := 0
	for _, v := range m {
		if string(v) != "null" {
			n++
		}
	}
	return n
}

// PayloadJSON returns the canonical JSON encoding of the payload, as persisted
// verbatim by the store.
func PayloadJSON(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// SleepPayload carries one night's sleep summary. Merged from the vendor's
// daily sleep, sleep session and SpO2 datasets.
type SleepPayload struct {
	Day                       string         `json:"day"`
	Score                     *int           `json:"score,omitempty"`
	Efficiency                *int           `json:"efficiency,omitempty"`
	Latency                   *int           `json:"latency,omitempty"`
	TotalSleepDuration        *int           `json:"total_sleep_duration,omitempty"`
	DeepSleepDuration         *int           `json:"deep_sleep_duration,omitempty"`
	RemSleepDuration          *int           `json:"rem_sleep_duration,omitempty"`
	LightSleepDuration        *int           `json:"light_sleep_duration,omitempty"`
	AwakeTime                 *int           `json:"awake_time,omitempty"`
	TimeInBed                 *int           `json:"time_in_bed,omitempty"`
	AverageHeartRate          *float64       `json:"average_heart_rate,omitempty"`
	AverageHRV                *int           `json:"average_hrv,omitempty"`
	LowestHeartRate           *int           `json:"lowest_heart_rate,omitempty"`
	BedtimeStart              *time.Time     `json:"bedtime_start,omitempty"`
	BedtimeEnd                *time.Time     `json:"bedtime_end,omitempty"`
	AverageSpO2               *float64       `json:"average_spo2,omitempty"`
	BreathingDisturbanceIndex *int           `json:"breathing_disturbance_index,omitempty"`
	Recommendation            *string        `json:"recommendation,omitempty"`
	Status                    *string        `json:"status,omitempty"`
	Contributors              map[string]any `json:"contributors,omitempty"`
}

func (p SleepPayload) RecordType() Type   { return TypeSleep }
func (p SleepPayload) NaturalKey() string { return p.Day }
func (p SleepPayload) SubjectTime() time.Time {
	if p.BedtimeEnd != nil {
		return *p.BedtimeEnd
	}
	return dayTime(p.Day)
}

// ReadinessPayload carries one day's readiness summary, with the vendor's
// daily stress dataset merged in.
type ReadinessPayload struct {
	Day                       string         `json:"day"`
	Score                     *int           `json:"score,omitempty"`
	TemperatureDeviation      *float64       `json:"temperature_deviation,omitempty"`
	TemperatureTrendDeviation *float64       `json:"temperature_trend_deviation,omitempty"`
	StressHigh                *int           `json:"stress_high,omitempty"`
	RecoveryHigh              *int           `json:"recovery_high,omitempty"`
	DaySummary                *string        `json:"day_summary,omitempty"`
	Contributors              map[string]any `json:"contributors,omitempty"`
}

func (p ReadinessPayload) RecordType() Type       { return TypeReadiness }
func (p ReadinessPayload) NaturalKey() string     { return p.Day }
func (p ReadinessPayload) SubjectTime() time.Time { return dayTime(p.Day) }

// ActivityPayload carries one day's activity summary.
type ActivityPayload struct {
	Day                       string         `json:"day"`
	Score                     *int           `json:"score,omitempty"`
	Steps                     *int           `json:"steps,omitempty"`
	TotalCalories             *int           `json:"total_calories,omitempty"`
	ActiveCalories            *int           `json:"active_calories,omitempty"`
	TargetCalories            *int           `json:"target_calories,omitempty"`
	AverageMET                *float64       `json:"average_met,omitempty"`
	EquivalentWalkingDistance *int           `json:"equivalent_walking_distance,omitempty"`
	HighActivityTime          *int           `json:"high_activity_time,omitempty"`
	MediumActivityTime        *int           `json:"medium_activity_time,omitempty"`
	LowActivityTime           *int           `json:"low_activity_time,omitempty"`
	SedentaryTime             *int           `json:"sedentary_time,omitempty"`
	RestingTime               *int           `json:"resting_time,omitempty"`
	NonWearTime               *int           `json:"non_wear_time,omitempty"`
	InactivityAlerts          *int           `json:"inactivity_alerts,omitempty"`
	Contributors              map[string]any `json:"contributors,omitempty"`
}

func (p ActivityPayload) RecordType() Type       { return TypeActivity }
func (p ActivityPayload) NaturalKey() string     { return p.Day }
func (p ActivityPayload) SubjectTime() time.Time { return dayTime(p.Day) }

// HeartRatePayload is a single heart-rate sample. Samples are keyed on their
// minute bucket so the feed's 5-minute granularity and the archive's raw
// samples land on the same key when they describe the same reading.
type HeartRatePayload struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
	Tag       *string   `json:"tag,omitempty"`
}

func (p HeartRatePayload) RecordType() Type { return TypeHeartRate }
func (p HeartRatePayload) NaturalKey() string {
	return p.Timestamp.UTC().Truncate(time.Minute).Format(time.RFC3339)
}
func (p HeartRatePayload) SubjectTime() time.Time { return p.Timestamp }

// WorkoutPayload is a single recorded workout.
type WorkoutPayload struct {
	Day       string     `json:"day"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Activity  *string    `json:"activity,omitempty"`
	Calories  *float64   `json:"calories,omitempty"`
	Distance  *float64   `json:"distance,omitempty"`
	Intensity *string    `json:"intensity,omitempty"`
	Label     *string    `json:"label,omitempty"`
}

func (p WorkoutPayload) RecordType() Type { return TypeWorkout }
func (p WorkoutPayload) NaturalKey() string {
	return p.Day + "/" + p.StartTime.UTC().Format(time.RFC3339)
}
func (p WorkoutPayload) SubjectTime() time.Time { return p.StartTime }

// TagPayload is a user-entered tag on a time range.
type TagPayload struct {
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	TagTypeCode string     `json:"tag_type_code"`
	Comment     *string    `json:"comment,omitempty"`
}

func (p TagPayload) RecordType() Type { return TypeTag }
func (p TagPayload) NaturalKey() string {
	return p.StartTime.UTC().Format(time.RFC3339) + "/" + p.TagTypeCode
}
func (p TagPayload) SubjectTime() time.Time { return p.StartTime }

// TemperaturePayload is a single skin-temperature sample.
type TemperaturePayload struct {
	Timestamp time.Time `json:"timestamp"`
	SkinTemp  float64   `json:"skin_temp"`
}

func (p TemperaturePayload) RecordType() Type { return TypeTemperature }
func (p TemperaturePayload) NaturalKey() string {
	return p.Timestamp.UTC().Truncate(time.Minute).Format(time.RFC3339)
}
func (p TemperaturePayload) SubjectTime() time.Time { return p.Timestamp }

// dayTime anchors a subject day at midnight UTC for timestamp comparisons.
func dayTime(day string) time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}
	}
	return t
}
