// Package diagnose derives battery risk and health indicators from a single
// telemetry sample.
//
// Derive(sample, timestamp) is a pure function: the same sample and timestamp
// always yield an identical Record, and the sample is never modified. All
// thresholds are inclusive or exclusive exactly as documented on the
// threshold constants in derive.go.
//
// Indicators, in evaluation order:
//
//	risk, fireRisk         LOW | MEDIUM | HIGH, highest matching tier wins
//	highVoltage            voltage ≥ 375
//	highCurrent            |current| ≥ 120
//	charging               current > 0
//	batteryHealthPred      GOOD | FAIR | POOR from soh
//	batteryPerformance     NORMAL | DEGRADED | LOW from soc
//	batteryCondition       HEALTHY | WATCH | REPLACE_SUGGESTED from soh
//	healthScore            soh penalised by heat and high current, 0–100
//	anomalies              ordered list of named conditions
//	RUL_months             remaining useful life estimate, at least 1
//	summary                one-line human readable digest
package diagnose
