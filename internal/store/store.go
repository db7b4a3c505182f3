// Package store holds the shared session records both participants' clients
// write through. All mutation goes through Update, an atomic
// read-transform-write, so a racing writer can never overwrite another
// writer's appended turn.
package store

import (
	"context"
	"errors"

	"github.com/chattitude/chattitude/internal/models"
)

var (
	ErrSessionNotFound = errors.New("store: session not found")
	ErrSessionExists   = errors.New("store: session already exists")
	// ErrConflict is returned when an Update loses the optimistic
	// concurrency race more times than the retry budget allows.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// maxUpdateRetries bounds how often an Update is retried after losing the
// optimistic concurrency check to another writer.
const maxUpdateRetries = 5

// SessionStore is the abstract shared store. Any multi-reader/multi-writer
// keyed backend works as long as Update is atomic against concurrent writers.
type SessionStore interface {
	// Create writes a fresh session. ErrSessionExists if the id is taken.
	Create(ctx context.Context, s *models.Session) error

	// Get reads a point-in-time snapshot.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update atomically applies fn to the current session value and writes
	// the result back with an incremented version. fn returning an error
	// aborts the update and surfaces that error unchanged. Returns the
	// stored result.
	Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error)

	// Subscribe delivers the current snapshot immediately and then every
	// subsequent change, each as a full session value, until ctx is done.
	// Delivery is at-least-once per change; consumers must treat every
	// snapshot as replacing their whole local view.
	Subscribe(ctx context.Context, id string) (<-chan *models.Session, error)

	Close() error
}
