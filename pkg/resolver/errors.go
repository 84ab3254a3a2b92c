package resolver

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

var (
	// ErrClosed is recorded for ids whose flush was cut short by Close.
	ErrClosed = errors.New("resolver closed")

	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("entity type already registered")

	// ErrUnknownType is returned when no resolver is registered for a type.
	ErrUnknownType = errors.New("entity type not registered")

	// ErrTypeMismatch is returned when a registered resolver has different
	// key or value types than requested.
	ErrTypeMismatch = errors.New("resolver type mismatch")
)

// ChunkError is stored on every id of a chunk whose list request failed.
type ChunkError struct {
	Type       entity.Type
	Generation uint64
	Chunk      int
	Size       int
	Err        error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %d (%d ids, generation %d): %v",
		e.Type, e.Chunk, e.Size, e.Generation, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ChunkError) Unwrap() error {
	return e.Err
}
