// Package entity defines the LIMS record types shared by the resolver,
// the backend client and the cache layers.
package entity

import "fmt"

// Type names a category of record. Each type has its own cache namespace
// and its own resolver.
type Type string

const (
	// TypeSample is a biological sample.
	TypeSample Type = "sample"

	// TypeContainer is a tube, box or plate holding samples.
	TypeContainer Type = "container"

	// TypeProject groups samples and runs.
	TypeProject Type = "project"

	// TypeRun is a sequencing or analysis run.
	TypeRun Type = "run"

	// TypeIndividual is the organism a sample was taken from.
	TypeIndividual Type = "individual"

	// TypeSpecies is a taxonomic species.
	TypeSpecies Type = "species"

	// TypeLocation is a storage or sampling location.
	TypeLocation Type = "location"
)

// Types lists every known entity type.
func Types() []Type {
	return []Type{
		TypeSample,
		TypeContainer,
		TypeProject,
		TypeRun,
		TypeIndividual,
		TypeSpecies,
		TypeLocation,
	}
}

// ParseType converts a string to a known Type.
func ParseType(s string) (Type, error) {
	for _, t := range Types() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Status is the lifecycle state of a cached record.
type Status int

const (
	// StatusAbsent means the id was never requested (or the backend omitted it).
	StatusAbsent Status = iota

	// StatusPending means the id is queued or in flight.
	StatusPending

	// StatusLoaded means the value is available.
	StatusLoaded

	// StatusError means the last fetch for the id failed.
	StatusError
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusPending:
		return "pending"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Record is the cache entry for one id.
type Record[V any] struct {
	Status Status

	// Value is only meaningful when Status is StatusLoaded.
	Value V

	// Err is the last fetch error when Status is StatusError.
	Err error

	// Attempts counts consecutive failed fetches for this id.
	Attempts int
}

// Loaded returns a loaded record holding v.
func Loaded[V any](v V) Record[V] {
	return Record[V]{Status: StatusLoaded, Value: v}
}
