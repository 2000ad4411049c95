package record

import (
	"time"
)

// Raw is one loosely-typed input item as produced by a source collaborator:
// a decoded API payload fragment or a parsed archive CSV row.
type Raw struct {
	// Dataset is the canonical dataset name ("daily_sleep", "heartrate", ...)
	// assigned by the source from the endpoint or archive file name.
	// May be empty, in which case the normalizer infers the type from
	// structural markers.
	Dataset string

	// Values holds the item's fields. Values are strings for CSV rows and
	// decoded JSON values for feed payloads.
	Values map[string]any

	// SourceVersion is an opaque marker of the schema the item conforms to
	// (API version or export format revision).
	SourceVersion string
}

// Dataset names emitted by the sources. Archive file names and feed endpoints
// both map onto this set before normalization.
const (
	DatasetDailySleep     = "daily_sleep"
	DatasetDailyReadiness = "daily_readiness"
	DatasetDailyActivity  = "daily_activity"
	DatasetDailySpO2      = "daily_spo2"
	DatasetSleepSession   = "sleep"
	DatasetHeartRate      = "heartrate"
	DatasetWorkout        = "workout"
	DatasetTag            = "enhanced_tag"
	DatasetTemperature    = "temperature"
)

var datasetTypes = map[string]Type{
	DatasetDailySleep:     TypeSleep,
	DatasetDailySpO2:      TypeSleep,
	DatasetSleepSession:   TypeSleep,
	DatasetDailyReadiness: TypeReadiness,
	DatasetDailyActivity:  TypeActivity,
	DatasetHeartRate:      TypeHeartRate,
	DatasetWorkout:        TypeWorkout,
	DatasetTag:            TypeTag,
	DatasetTemperature:    TypeTemperature,
}

// Normalize maps a raw item into a canonical record, validating required
// fields and tagging provenance. It is a pure function: same input, same
// output, no side effects beyond the imported-at timestamp.
func Normalize(raw Raw, src Source) (Canonical, error) {
	t, ok := detectType(raw)
	if !ok {
		return Canonical{}, unknownType(raw.Dataset)
	}

	var (
		payload Payload
		err     error
	)
	switch t {
	case TypeSleep:
		payload, err = normalizeSleep(raw)
	case TypeReadiness:
		payload, err = normalizeReadiness(raw)
	case TypeActivity:
		payload, err = normalizeActivity(raw)
	case TypeHeartRate:
		payload, err = normalizeHeartRate(raw)
	case TypeWorkout:
		payload, err = normalizeWorkout(raw)
	case TypeTag:
		payload, err = normalizeTag(raw)
	case TypeTemperature:
		payload, err = normalizeTemperature(raw)
	}
	if err != nil {
		return Canonical{}, err
	}

	hash, err := ContentHash(t, payload.NaturalKey(), payload)
	if err != nil {
		return Canonical{}, malformedValue(raw.Dataset, "payload", err.Error())
	}

	return Canonical{
		Type:          t,
		NaturalKey:    payload.NaturalKey(),
		Payload:       payload,
		Source:        src,
		SourceVersion: raw.SourceVersion,
		ImportedAt:    time.Now().UTC(),
		ContentHash:   hash,
	}, nil
}

// detectType resolves the record variant from the dataset name, or falls back
// to structural markers when the dataset is untagged.
func detectType(raw Raw) (Type, bool) {
	if t, ok := datasetTypes[raw.Dataset]; ok {
		return t, true
	}
	if raw.Dataset != "" {
		return "", false
	}
	switch {
	case has(raw, "bpm"):
		return TypeHeartRate, true
	case has(raw, "skin_temp"):
		return TypeTemperature, true
	case has(raw, "tag_type_code"):
		return TypeTag, true
	case has(raw, "activity") && has(raw, "start_time"):
		return TypeWorkout, true
	default:
		return "", false
	}
}

func has(raw Raw, field string) bool {
	v, ok := raw.Values[field]
	return ok && v != nil
}

func normalizeSleep(raw Raw) (Payload, error) {
	day := parseDay(raw.Values["day"])
	bedtimeStart := parseTime(raw.Values["bedtime_start"])
	if day == nil && bedtimeStart != nil {
		// Session rows occasionally omit the day column; derive it.
		d := bedtimeStart.Format("2006-01-02")
		day = &d
	}
	if day == nil {
		return nil, missingField(raw.Dataset, "day")
	}

	p := SleepPayload{
		Day:                       *day,
		Score:                     parseInt(raw.Values["score"]),
		Efficiency:                parseInt(raw.Values["efficiency"]),
		Latency:                   parseInt(raw.Values["latency"]),
		TotalSleepDuration:        parseInt(raw.Values["total_sleep_duration"]),
		DeepSleepDuration:         parseInt(raw.Values["deep_sleep_duration"]),
		RemSleepDuration:          parseInt(raw.Values["rem_sleep_duration"]),
		LightSleepDuration:        parseInt(raw.Values["light_sleep_duration"]),
		AwakeTime:                 parseInt(raw.Values["awake_time"]),
		TimeInBed:                 parseInt(raw.Values["time_in_bed"]),
		AverageHeartRate:          parseFloat(raw.Values["average_heart_rate"]),
		AverageHRV:                parseInt(raw.Values["average_hrv"]),
		LowestHeartRate:           parseInt(raw.Values["lowest_heart_rate"]),
		BedtimeStart:              bedtimeStart,
		BedtimeEnd:                parseTime(raw.Values["bedtime_end"]),
		BreathingDisturbanceIndex: parseInt(raw.Values["breathing_disturbance_index"]),
		Recommendation:            parseString(raw.Values["recommendation"]),
		Status:                    parseString(raw.Values["status"]),
		Contributors:              parseJSONMap(raw.Values["contributors"]),
	}

	// SpO2 arrives either flattened or as a JSON object with an average.
	if avg := parseFloat(raw.Values["average_spo2"]); avg != nil {
		p.AverageSpO2 = avg
	} else if spo2 := parseJSONMap(raw.Values["spo2_percentage"]); spo2 != nil {
		p.AverageSpO2 = parseFloat(spo2["average"])
	}

	// A day alone is not a sleep record: require at least one metric.
	if Completeness(p) <= 1 {
		return nil, missingField(raw.Dataset, "score")
	}
	return p, nil
}

func normalizeReadiness(raw Raw) (Payload, error) {
	day := parseDay(raw.Values["day"])
	if day == nil {
		return nil, missingField(raw.Dataset, "day")
	}
	p := ReadinessPayload{
		Day:                       *day,
		Score:                     parseInt(raw.Values["score"]),
		TemperatureDeviation:      parseFloat(raw.Values["temperature_deviation"]),
		TemperatureTrendDeviation: parseFloat(raw.Values["temperature_trend_deviation"]),
		StressHigh:                parseInt(raw.Values["stress_high"]),
		RecoveryHigh:              parseInt(raw.Values["recovery_high"]),
		DaySummary:                parseString(raw.Values["day_summary"]),
		Contributors:              parseJSONMap(raw.Values["contributors"]),
	}
	if Completeness(p) <= 1 {
		return nil, missingField(raw.Dataset, "score")
	}
	return p, nil
}

func normalizeActivity(raw Raw) (Payload, error) {
	day := parseDay(raw.Values["day"])
	if day == nil {
		return nil, missingField(raw.Dataset, "day")
	}
	p := ActivityPayload{
		Day:                       *day,
		Score:                     parseInt(raw.Values["score"]),
		Steps:                     parseInt(raw.Values["steps"]),
		TotalCalories:             parseInt(raw.Values["total_calories"]),
		ActiveCalories:            parseInt(raw.Values["active_calories"]),
		TargetCalories:            parseInt(raw.Values["target_calories"]),
		AverageMET:                parseFloat(raw.Values["average_met"]),
		EquivalentWalkingDistance: parseInt(raw.Values["equivalent_walking_distance"]),
		HighActivityTime:          parseInt(raw.Values["high_activity_time"]),
		MediumActivityTime:        parseInt(raw.Values["medium_activity_time"]),
		LowActivityTime:           parseInt(raw.Values["low_activity_time"]),
		SedentaryTime:             parseInt(raw.Values["sedentary_time"]),
		RestingTime:               parseInt(raw.Values["resting_time"]),
		NonWearTime:               parseInt(raw.Values["non_wear_time"]),
		InactivityAlerts:          parseInt(raw.Values["inactivity_alerts"]),
		Contributors:              parseJSONMap(raw.Values["contributors"]),
	}
	if Completeness(p) <= 1 {
		return nil, missingField(raw.Dataset, "score")
	}
	return p, nil
}

func normalizeHeartRate(raw Raw) (Payload, error) {
	ts := parseTime(raw.Values["timestamp"])
	if ts == nil {
		if _, ok := raw.Values["timestamp"]; !ok {
			return nil, missingField(raw.Dataset, "timestamp")
		}
		return nil, malformedValue(raw.Dataset, "timestamp", "unparseable")
	}
	bpm := parseInt(raw.Values["bpm"])
	if bpm == nil {
		return nil, missingField(raw.Dataset, "bpm")
	}
	return HeartRatePayload{
		Timestamp: ts.UTC(),
		BPM:       *bpm,
		Tag:       parseString(raw.Values["source"]),
	}, nil
}

func normalizeWorkout(raw Raw) (Payload, error) {
	start := parseTime(raw.Values["start_time"])
	if start == nil {
		return nil, missingField(raw.Dataset, "start_time")
	}
	day := parseDay(raw.Values["day"])
	if day == nil {
		d := start.Format("2006-01-02")
		day = &d
	}
	return WorkoutPayload{
		Day:       *day,
		StartTime: start.UTC(),
		EndTime:   parseTime(raw.Values["end_time"]),
		Activity:  parseString(raw.Values["activity"]),
		Calories:  parseFloat(raw.Values["calories"]),
		Distance:  parseFloat(raw.Values["distance"]),
		Intensity: parseString(raw.Values["intensity"]),
		Label:     parseString(raw.Values["label"]),
	}, nil
}

func normalizeTag(raw Raw) (Payload, error) {
	start := parseTime(raw.Values["start_time"])
	if start == nil {
		return nil, missingField(raw.Dataset, "start_time")
	}
	code := parseString(raw.Values["tag_type_code"])
	if code == nil {
		return nil, missingField(raw.Dataset, "tag_type_code")
	}
	return TagPayload{
		StartTime:   start.UTC(),
		EndTime:     parseTime(raw.Values["end_time"]),
		TagTypeCode: *code,
		Comment:     parseString(raw.Values["comment"]),
	}, nil
}

func normalizeTemperature(raw Raw) (Payload, error) {
	ts := parseTime(raw.Values["timestamp"])
	if ts == nil {
		return nil, missingField(raw.Dataset, "timestamp")
	}
	temp := parseFloat(raw.Values["skin_temp"])
	if temp == nil {
		return nil, missingField(raw.Dataset, "skin_temp")
	}
	return TemperaturePayload{Timestamp: ts.UTC(), SkinTemp: *temp}, nil
}
