// Package telemetry loads and validates the pre-recorded battery dataset.
//
// A dataset file is a JSON array. Each element is either a flat sample
//
//	{"temp": 31.2, "voltage": 362.5, "current": -48, "soc": 74, "soh": 91}
//
// or the same five fields nested under an "enc" key, optionally alongside
// other fields:
//
//	{"id": 7, "enc": {"temp": 31.2, ...}}
//
// When "enc" holds an object it takes precedence over any flat fields.
//
// Normalize(raw) maps one element to a Sample. Load(path) reads the file,
// normalizes every element and fails on the first malformed one, so that
// derivation never has to deal with missing or non-numeric fields at runtime.
// Dataset.Raw keeps the original elements unmodified for clients that want
// the dataset exactly as recorded.
package telemetry
