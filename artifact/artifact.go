// Package artifact stores rendered outputs and answers whether one already
// exists.
//
// The scheduler consults an Oracle before spending any budget on a job and
// writes successful renders through a Sink. Store implementations provide
// both: FileStore for a local output directory, MemoryStore for tests and
// dry runs, and NATSStore for output shared between machines through a
// JetStream object store bucket.
package artifact

import (
	"context"
	"errors"
	"strings"
)

// Common errors.
var (
	ErrInvalidID = errors.New("invalid artifact id")
	ErrNotFound  = errors.New("artifact not found")
	ErrClosed    = errors.New("store closed")
)

// Oracle reports whether an artifact is already present.
type Oracle interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Sink persists a rendered artifact.
type Sink interface {
	Write(ctx context.Context, id string, data []byte) error
}

// Store is an Oracle and a Sink that can also read artifacts back.
type Store interface {
	Oracle
	Sink

	// Read returns the artifact bytes or ErrNotFound.
	Read(ctx context.Context, id string) ([]byte, error)
}

// ValidateID checks that id is a single, non-empty path element.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." {
		return ErrInvalidID
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return ErrInvalidID
	}
	if strings.HasPrefix(id, ".") {
		// Reserved for temp files.
		return ErrInvalidID
	}
	return nil
}
