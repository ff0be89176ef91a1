// Package state persists per-workspace selections and dispatch history.
//
// Two implementations back the Store interface: SQLiteStore for normal
// runs (a single database file under the user configuration directory)
// and MemoryStore for tests and ephemeral runs. Selections are keyed by
// (workspace ID, kind) so a workspace's picks never leak into another.
package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row matches a lookup.
var ErrNotFound = errors.New("state: not found")

// Dispatch outcomes. The host hands work off and never learns how it
// ended, so there is no "succeeded".
const (
	OutcomeHandedOff = "handed_off"
	OutcomeFailed    = "failed"
)

// Selection is one persisted pick.
type Selection struct {
	WorkspaceID string
	Kind        string
	Key         string
	Label       string
	PickedAt    time.Time
}

// Dispatch is one recorded hand-off to the host.
type Dispatch struct {
	ID          string
	WorkspaceID string
	Kind        string
	ItemKey     string
	ItemLabel   string
	StartedAt   time.Time
	Outcome     string
	Detail      string
}

// Store is the persistence surface used by the selection manager and
// the dispatch recorder.
type Store interface {
	// SaveSelection inserts or replaces the selection for the
	// selection's (workspace, kind) pair.
	SaveSelection(ctx context.Context, sel Selection) error

	// LoadSelection returns the persisted selection, or ErrNotFound.
	LoadSelection(ctx context.Context, workspaceID, kind string) (*Selection, error)

	// ClearSelection removes the selection. Clearing an absent
	// selection is not an error.
	ClearSelection(ctx context.Context, workspaceID, kind string) error

	// RecordDispatch appends one dispatch record.
	RecordDispatch(ctx context.Context, d Dispatch) error

	// RecentDispatches returns up to limit records for the workspace,
	// newest first.
	RecentDispatches(ctx context.Context, workspaceID string, limit int) ([]Dispatch, error)

	// Close releases the store.
	Close() error
}
