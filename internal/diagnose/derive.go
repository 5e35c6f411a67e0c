package diagnose

import (
	"fmt"
	"math"

	"github.com/battwatch/battwatch/internal/telemetry"
)

// Risk thresholds. A reading at the threshold value matches.
const (
	riskHighTemp      = 46.0
	riskHighCurrent   = 150.0
	riskHighVoltage   = 380.0
	riskMediumTemp    = 42.0
	riskMediumCurrent = 120.0
	riskMediumVoltage = 370.0
)

// Fire-risk thresholds.
const (
	fireHighTemp        = 50.0
	fireCompoundTemp    = 46.0 // with fireCompoundCurrent
	fireCompoundCurrent = 140.0
	fireMediumTemp      = 42.0
)

// Flag and anomaly thresholds.
const (
	highVoltageAt     = 375.0
	highCurrentAt     = 120.0
	anomalyTempAt     = 46.0
	anomalyVoltageAt  = 375.0
	anomalyCurrentAt  = 140.0
	anomalyLowSoCAtOr = 15.0 // soc at or below
)

// State-of-health and state-of-charge bands.
const (
	healthPoorBelow   = 75.0
	healthFairBelow   = 85.0
	perfNormalAbove   = 80.0
	perfDegradedAbove = 50.0
	condHealthyAbove  = 85.0
	condWatchAbove    = 70.0
)

// Health score and RUL coefficients.
const (
	scoreRefTemp        = 25.0
	scoreTempPenalty    = 0.2 // per °C above scoreRefTemp
	scoreCurrentPenalty = 5.0 // when highCurrent
	rulBaseSoH          = 50.0
	rulMonthsPerPct     = 1.5
	rulMinMonths        = 1.0
	rulMaxMonths        = math.MaxInt32 // keeps the int conversion exact for any soh
)

// Derive computes the diagnostic record for s captured at timestamp.
// It is total over finite inputs and has no side effects.
func Derive(s telemetry.Sample, timestamp string) *Record {
	absCurrent := math.Abs(s.Current)

	highCurrent := absCurrent >= highCurrentAt
	charging := s.Current > 0
	risk := classifyRisk(s.Temp, absCurrent, s.Voltage)
	health := classifyHealth(s.SoH)

	d := Diagnostics{
		Risk:               risk,
		FireRisk:           classifyFireRisk(s.Temp, absCurrent),
		HighVoltage:        s.Voltage >= highVoltageAt,
		HighCurrent:        highCurrent,
		Charging:           charging,
		BatteryHealthPred:  health,
		BatteryPerformance: classifyPerformance(s.SoC),
		BatteryCondition:   classifyCondition(s.SoH),
		HealthScore:        healthScore(s.SoH, s.Temp, highCurrent),
		Anomalies:          anomalies(s, absCurrent),
		RULMonths:          rulMonths(s.SoH),
		Summary:            summary(risk, health, charging),
	}

	return &Record{
		Timestamp:   timestamp,
		Telemetry:   s,
		Diagnostics: d,
	}
}

func classifyRisk(temp, absCurrent, voltage float64) Level {
	switch {
	case temp >= riskHighTemp || absCurrent >= riskHighCurrent || voltage >= riskHighVoltage:
		return LevelHigh
	case temp >= riskMediumTemp || absCurrent >= riskMediumCurrent || voltage >= riskMediumVoltage:
		return LevelMedium
	default:
		return LevelLow
	}
}

func classifyFireRisk(temp, absCurrent float64) Level {
	switch {
	case temp >= fireHighTemp || (temp >= fireCompoundTemp && absCurrent >= fireCompoundCurrent):
		return LevelHigh
	case temp >= fireMediumTemp:
		return LevelMedium
	default:
		return LevelLow
	}
}

func classifyHealth(soh float64) HealthPrediction {
	switch {
	case soh < healthPoorBelow:
		return HealthPoor
	case soh < healthFairBelow:
		return HealthFair
	default:
		return HealthGood
	}
}

func classifyPerformance(soc float64) Performance {
	switch {
	case soc > perfNormalAbove:
		return PerformanceNormal
	case soc > perfDegradedAbove:
		return PerformanceDegraded
	default:
		return PerformanceLow
	}
}

func classifyCondition(soh float64) Condition {
	switch {
	case soh > condHealthyAbove:
		return ConditionHealthy
	case soh > condWatchAbove:
		return ConditionWatch
	default:
		return ConditionReplaceSuggested
	}
}

// healthScore takes highCurrent as computed by the caller so the penalty
// always agrees with the published highCurrent flag.
func healthScore(soh, temp float64, highCurrent bool) int {
	raw := soh - (temp-scoreRefTemp)*scoreTempPenalty
	if highCurrent {
		raw -= scoreCurrentPenalty
	}
	return int(clamp(roundHalfUp(raw), 0, 100))
}

func anomalies(s telemetry.Sample, absCurrent float64) []string {
	out := make([]string, 0, len(AnomalyNames))
	if s.Temp >= anomalyTempAt {
		out = append(out, AnomalyHighTemperature)
	}
	if s.Voltage >= anomalyVoltageAt {
		out = append(out, AnomalyOvervoltage)
	}
	if absCurrent >= anomalyCurrentAt {
		out = append(out, AnomalyVeryHighCurrent)
	}
	if s.SoC <= anomalyLowSoCAtOr {
		out = append(out, AnomalyLowSoC)
	}
	return out
}

func rulMonths(soh float64) int {
	return int(clamp(roundHalfUp((soh-rulBaseSoH)*rulMonthsPerPct), rulMinMonths, rulMaxMonths))
}

func summary(risk Level, health HealthPrediction, charging bool) string {
	state := "Not Charging"
	if charging {
		state = "Charging"
	}
	return fmt.Sprintf("Risk:%s | Health:%s | %s", risk, health, state)
}

// roundHalfUp rounds to the nearest integer with ties going toward +Inf,
// so -2.5 becomes -2 and 2.5 becomes 3. Comparing the fraction avoids the
// precision loss of floor(v+0.5) near 0.5 and above 2^52.
func roundHalfUp(v float64) float64 {
	f := math.Floor(v)
	if v-f >= 0.5 {
		f++
	}
	return f
}

// clamp bounds v to [lo, hi] before any int conversion.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
