package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrEmptyDataset is returned by Load when the file holds an empty array.
var ErrEmptyDataset = errors.New("dataset is empty")

// Dataset is the fixed, ordered sample sequence loaded at startup.
// It must not be modified after Load returns.
type Dataset struct {
	// Raw holds every element exactly as it appeared in the file.
	Raw []json.RawMessage

	// Samples holds the normalized readings, index-aligned with Raw.
	Samples []Sample
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Samples) }

// Load reads and validates the JSON dataset at path.
//
// The file must contain a non-empty JSON array and every element must
// normalize cleanly. The first malformed element fails the whole load.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}
	return ds, nil
}

// Parse validates an in-memory dataset document. See Load.
func Parse(data []byte) (*Dataset, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse: must be a JSON array of samples: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyDataset
	}

	ds := &Dataset{
		Raw:     raw,
		Samples: make([]Sample, 0, len(raw)),
	}
	for i, r := range raw {
		s, err := Normalize(r)
		if err != nil {
			return nil, fmt.Errorf("sample[%d]: %w", i, err)
		}
		if !s.InRange() {
			slog.Warn("telemetry: soc/soh outside [0,100], accepting as-is",
				"index", i, "soc", s.SoC, "soh", s.SoH)
		}
		ds.Samples = append(ds.Samples, s)
	}
	return ds, nil
}
