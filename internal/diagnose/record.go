package diagnose

import (
	"time"

	"github.com/battwatch/battwatch/internal/telemetry"
)

// Level is a three-tier risk classification.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Rank maps a Level to 0, 1 or 2 for numeric export.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// HealthPrediction classifies state of health.
type HealthPrediction string

const (
	HealthGood HealthPrediction = "GOOD"
	HealthFair HealthPrediction = "FAIR"
	HealthPoor HealthPrediction = "POOR"
)

// Performance classifies state of charge.
type Performance string

const (
	PerformanceNormal   Performance = "NORMAL"
	PerformanceDegraded Performance = "DEGRADED"
	PerformanceLow      Performance = "LOW"
)

// Condition is the maintenance recommendation derived from state of health.
type Condition string

const (
	ConditionHealthy          Condition = "HEALTHY"
	ConditionWatch            Condition = "WATCH"
	ConditionReplaceSuggested Condition = "REPLACE_SUGGESTED"
)

// Anomaly names, listed in the order Derive appends them.
const (
	AnomalyHighTemperature = "High Temperature"
	AnomalyOvervoltage     = "Overvoltage"
	AnomalyVeryHighCurrent = "Very High Current"
	AnomalyLowSoC          = "Low SoC"
)

// AnomalyNames lists every anomaly Derive can report, in report order.
var AnomalyNames = []string{
	AnomalyHighTemperature,
	AnomalyOvervoltage,
	AnomalyVeryHighCurrent,
	AnomalyLowSoC,
}

// Record is the output of one derivation. Treat it as immutable once built:
// the scheduler publishes records by pointer to concurrent readers.
type Record struct {
	Timestamp   string           `json:"timestamp"`
	Telemetry   telemetry.Sample `json:"telemetry"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// Diagnostics is the derived indicator block of a Record.
type Diagnostics struct {
	Risk               Level            `json:"risk"`
	FireRisk           Level            `json:"fireRisk"`
	HighVoltage        bool             `json:"highVoltage"`
	HighCurrent        bool             `json:"highCurrent"`
	Charging           bool             `json:"charging"`
	BatteryHealthPred  HealthPrediction `json:"batteryHealthPred"`
	BatteryPerformance Performance      `json:"batteryPerformance"`
	BatteryCondition   Condition        `json:"batteryCondition"`
	HealthScore        int              `json:"healthScore"`
	Anomalies          []string         `json:"anomalies"` // never nil
	RULMonths          int              `json:"RUL_months"`
	Summary            string           `json:"summary"`
}

// HasAnomaly reports whether name is among the record's anomalies.
func (d Diagnostics) HasAnomaly(name string) bool {
	for _, a := range d.Anomalies {
		if a == name {
			return true
		}
	}
	return false
}

// TimestampLayout renders capture times as ISO-8601 UTC with millisecond
// precision, e.g. 2024-01-01T00:00:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp formats t with TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
