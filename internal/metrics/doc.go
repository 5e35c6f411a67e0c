// Package metrics exposes battwatch state in the Prometheus text format.
//
// Metrics owns a private registry. Tick instruments are updated by Observe,
// which is registered as a scheduler observer:
//
//	battwatch_ticks_total               counter
//	battwatch_derive_duration_seconds   histogram
//	battwatch_dataset_samples           gauge
//	battwatch_cursor                    gauge, index of the next sample
//
// The remaining series are read from the latest record at scrape time:
//
//	battwatch_temperature_celsius, battwatch_voltage_volts,
//	battwatch_current_amperes, battwatch_soc_percent, battwatch_soh_percent,
//	battwatch_health_score, battwatch_rul_months,
//	battwatch_risk_level{kind="risk|fire"}   LOW=0 MEDIUM=1 HIGH=2
//	battwatch_charging                       0 or 1
//	battwatch_anomaly{name="..."}            1 when present, else 0
//
// Fetch, Parse and Value read an exposition back; the CLI uses them.
package metrics
