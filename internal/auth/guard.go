package auth

import (
	"crypto/subtle"
	"errors"
)

// ModeAPIKey is the only mode that enforces a key.
const ModeAPIKey = "apikey"

var (
	errMissingKey = errors.New("missing api key")
	errInvalidKey = errors.New("invalid api key")
)

// Guard decides whether a presented key is acceptable.
type Guard struct {
	header string
	key    []byte
	exempt map[string]struct{}
}

// NewGuard returns a Guard that checks header against key. A nil Guard is
// returned when mode and key leave authentication off.
//
// exempt names requests that skip the check: HTTP paths or gRPC full
// method names.
func NewGuard(mode, header, key string, exempt ...string) *Guard {
	if mode != ModeAPIKey || key == "" {
		return nil
	}
	g := &Guard{
		header: header,
		key:    []byte(key),
		exempt: make(map[string]struct{}, len(exempt)),
	}
	for _, e := range exempt {
		g.exempt[e] = struct{}{}
	}
	return g
}

// Header is the header or metadata name the key travels in.
func (g *Guard) Header() string { return g.header }

// Exempt reports whether name bypasses the check.
func (g *Guard) Exempt(name string) bool {
	_, ok := g.exempt[name]
	return ok
}

// Check validates the first presented value. Comparison is constant time.
func (g *Guard) Check(presented []string) error {
	if len(presented) == 0 || presented[0] == "" {
		return errMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(presented[0]), g.key) != 1 {
		return errInvalidKey
	}
	return nil
}
