package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sample is one battery telemetry reading.
type Sample struct {
	Temp    float64 `json:"temp"`    // °C
	Voltage float64 `json:"voltage"` // V
	Current float64 `json:"current"` // A, positive while charging
	SoC     float64 `json:"soc"`     // state of charge, %
	SoH     float64 `json:"soh"`     // state of health, %
}

// fields is the wire shape of a sample. Pointers distinguish a missing
// field from a zero reading.
type fields struct {
	Temp    *float64 `json:"temp"`
	Voltage *float64 `json:"voltage"`
	Current *float64 `json:"current"`
	SoC     *float64 `json:"soc"`
	SoH     *float64 `json:"soh"`
}

// envelope only looks at "enc", so top-level fields are never decoded when a
// nested object is present.
type envelope struct {
	Enc json.RawMessage `json:"enc"`
}

// Normalize decodes one dataset element into a Sample.
//
// The element may be flat or carry its readings under "enc"; a non-null "enc"
// object wins. Every one of the five readings must be present and numeric.
func Normalize(raw []byte) (Sample, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}

	body := raw
	if len(env.Enc) > 0 && !bytes.Equal(bytes.TrimSpace(env.Enc), []byte("null")) {
		body = env.Enc
	}
	var f fields
	if err := json.Unmarshal(body, &f); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}

	required := []struct {
		name string
		v    *float64
	}{
		{"temp", f.Temp},
		{"voltage", f.Voltage},
		{"current", f.Current},
		{"soc", f.SoC},
		{"soh", f.SoH},
	}
	for _, r := range required {
		if r.v == nil {
			return Sample{}, fmt.Errorf("missing numeric field %q", r.name)
		}
	}

	return Sample{
		Temp:    *f.Temp,
		Voltage: *f.Voltage,
		Current: *f.Current,
		SoC:     *f.SoC,
		SoH:     *f.SoH,
	}, nil
}

// InRange reports whether SoC and SoH lie within [0, 100].
// Out-of-range values are still accepted by the derivation engine.
func (s Sample) InRange() bool {
	return s.SoC >= 0 && s.SoC <= 100 && s.SoH >= 0 && s.SoH <= 100
}
