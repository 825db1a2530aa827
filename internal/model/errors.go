package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Error taxonomy. Callers wrap these with eris.Wrapf so the context survives
// and errors.Is still classifies the failure.
var (
	// ErrDataAbsent marks a missing or empty input: point set, boundary row,
	// or persisted layer file.
	ErrDataAbsent = eris.New("data absent")

	// ErrDegenerateInput marks a point set that cannot support density
	// estimation (too few points, zero spread).
	ErrDegenerateInput = eris.New("degenerate input")

	// ErrGeometryInconsistency marks a coordinate-system mismatch between
	// geometries about to be combined.
	ErrGeometryInconsistency = eris.New("geometry inconsistency")

	// ErrConfiguration marks an unsupported option value. It is fatal to the
	// whole run, never scoped to a single pair.
	ErrConfiguration = eris.New("configuration error")
)

// Kind classifies an error against the taxonomy.
type Kind string

const (
	KindDataAbsent      Kind = "data_absent"
	KindDegenerateInput Kind = "degenerate_input"
	KindGeometry        Kind = "geometry_inconsistency"
	KindConfiguration   Kind = "configuration"
	KindIO              Kind = "io"
)

// KindOf maps err to its Kind. Errors outside the taxonomy (file system,
// sqlite, encoding) are reported as KindIO.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrDataAbsent):
		return KindDataAbsent
	case errors.Is(err, ErrDegenerateInput):
		return KindDegenerateInput
	case errors.Is(err, ErrGeometryInconsistency):
		return KindGeometry
	default:
		return KindIO
	}
}

// IsFatal reports whether err must abort a whole run rather than a single pair.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
