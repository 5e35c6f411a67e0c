package alerts

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/battwatch/battwatch/internal/diagnose"
)

type fieldKind int

const (
	kindNumber fieldKind = iota
	kindString
	kindBool
	kindAnomaly
)

// fields maps every condition field name to its kind.
var fields = map[string]fieldKind{
	"temp":           kindNumber,
	"voltage":        kindNumber,
	"current":        kindNumber,
	"abs_current":    kindNumber,
	"soc":            kindNumber,
	"soh":            kindNumber,
	"health_score":   kindNumber,
	"rul_months":     kindNumber,
	"risk":           kindString,
	"fire_risk":      kindString,
	"battery_health": kindString,
	"performance":    kindString,
	"condition":      kindString,
	"charging":       kindBool,
	"high_voltage":   kindBool,
	"high_current":   kindBool,
	"anomaly":        kindAnomaly,
}

// enumValues lists the accepted right-hand sides for string fields.
var enumValues = map[string][]string{
	"risk":           {string(diagnose.LevelLow), string(diagnose.LevelMedium), string(diagnose.LevelHigh)},
	"fire_risk":      {string(diagnose.LevelLow), string(diagnose.LevelMedium), string(diagnose.LevelHigh)},
	"battery_health": {string(diagnose.HealthGood), string(diagnose.HealthFair), string(diagnose.HealthPoor)},
	"performance":    {string(diagnose.PerformanceNormal), string(diagnose.PerformanceDegraded), string(diagnose.PerformanceLow)},
	"condition":      {string(diagnose.ConditionHealthy), string(diagnose.ConditionWatch), string(diagnose.ConditionReplaceSuggested)},
}

// Condition is a parsed rule expression of the form "<field> <op> <value>".
//
// Examples:
//
//	fire_risk == HIGH
//	health_score < 60
//	abs_current >= 150
//	charging == true
//	anomaly == Low SoC
type Condition struct {
	Field string
	Op    string
	Value string

	kind fieldKind
	num  float64
	flag bool
}

// String returns the normalised expression.
func (c Condition) String() string {
	return c.Field + " " + c.Op + " " + c.Value
}

// ParseCondition parses and validates expr. String and anomaly values are
// matched case-insensitively; anomaly names may contain spaces.
func ParseCondition(expr string) (Condition, error) {
	parts := strings.Fields(expr)
	if len(parts) < 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"<field> <op> <value>\"", expr)
	}
	c := Condition{
		Field: strings.ToLower(parts[0]),
		Op:    parts[1],
		Value: strings.Join(parts[2:], " "),
	}

	kind, ok := fields[c.Field]
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", expr, parts[0])
	}
	c.kind = kind

	if kind != kindAnomaly && len(parts) > 3 {
		return Condition{}, fmt.Errorf("condition %q: unexpected trailing tokens", expr)
	}

	switch kind {
	case kindNumber:
		switch c.Op {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			return Condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, c.Op)
		}
		v, err := strconv.ParseFloat(c.Value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Condition{}, fmt.Errorf("condition %q: %q is not a number", expr, c.Value)
		}
		c.num = v

	case kindString:
		if err := equalityOp(expr, c.Op); err != nil {
			return Condition{}, err
		}
		v, ok := matchFold(c.Value, enumValues[c.Field])
		if !ok {
			return Condition{}, fmt.Errorf("condition %q: %s must be one of %s",
				expr, c.Field, strings.Join(enumValues[c.Field], "|"))
		}
		c.Value = v

	case kindBool:
		if err := equalityOp(expr, c.Op); err != nil {
			return Condition{}, err
		}
		v, err := strconv.ParseBool(c.Value)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: %q is not a boolean", expr, c.Value)
		}
		c.flag = v
		c.Value = strconv.FormatBool(v)

	case kindAnomaly:
		if err := equalityOp(expr, c.Op); err != nil {
			return Condition{}, err
		}
		v, ok := matchFold(c.Value, diagnose.AnomalyNames)
		if !ok {
			return Condition{}, fmt.Errorf("condition %q: unknown anomaly %q", expr, c.Value)
		}
		c.Value = v
	}
	return c, nil
}

func equalityOp(expr, op string) error {
	if op == "==" || op == "!=" {
		return nil
	}
	return fmt.Errorf("condition %q: operator %q not allowed here, want == or !=", expr, op)
}

func matchFold(v string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a, true
		}
	}
	return "", false
}

// Eval reports whether rec satisfies the condition, along with the value
// that was compared. Non-numeric fields report 1 for a match and 0 otherwise.
func (c Condition) Eval(rec *diagnose.Record) (bool, float64) {
	if rec == nil {
		return false, 0
	}
	switch c.kind {
	case kindNumber:
		v := numericField(c.Field, rec)
		return compareFloat(v, c.Op, c.num), v
	case kindString:
		return boolValue(equals(c.Op, stringField(c.Field, rec) == c.Value))
	case kindBool:
		return boolValue(equals(c.Op, boolField(c.Field, rec) == c.flag))
	case kindAnomaly:
		return boolValue(equals(c.Op, rec.Diagnostics.HasAnomaly(c.Value)))
	}
	return false, 0
}

func equals(op string, same bool) bool {
	if op == "!=" {
		return !same
	}
	return same
}

func boolValue(b bool) (bool, float64) {
	if b {
		return true, 1
	}
	return false, 0
}

// numericField maps a field name to its value in the record.
func numericField(field string, rec *diagnose.Record) float64 {
	t, d := rec.Telemetry, rec.Diagnostics
	switch field {
	case "temp":
		return t.Temp
	case "voltage":
		return t.Voltage
	case "current":
		return t.Current
	case "abs_current":
		return math.Abs(t.Current)
	case "soc":
		return t.SoC
	case "soh":
		return t.SoH
	case "health_score":
		return float64(d.HealthScore)
	case "rul_months":
		return float64(d.RULMonths)
	default:
		return 0
	}
}

func stringField(field string, rec *diagnose.Record) string {
	d := rec.Diagnostics
	switch field {
	case "risk":
		return string(d.Risk)
	case "fire_risk":
		return string(d.FireRisk)
	case "battery_health":
		return string(d.BatteryHealthPred)
	case "performance":
		return string(d.BatteryPerformance)
	case "condition":
		return string(d.BatteryCondition)
	default:
		return ""
	}
}

func boolField(field string, rec *diagnose.Record) bool {
	d := rec.Diagnostics
	switch field {
	case "charging":
		return d.Charging
	case "high_voltage":
		return d.HighVoltage
	case "high_current":
		return d.HighCurrent
	default:
		return false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
