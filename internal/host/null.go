package host

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
)

// Invocation is one recorded NullHost call.
type Invocation struct {
	Kind  string
	Key   string
	Label string
	At    time.Time
}

// NullHost records dispatches without touching the system. Used by
// tests and dry runs.
type NullHost struct {
	mu          sync.Mutex
	invocations []Invocation
}

var (
	_ TaskRunner    = (*NullHost)(nil)
	_ DebugLauncher = (*NullHost)(nil)
)

// NewNullHost creates an empty recording host.
func NewNullHost() *NullHost {
	return &NullHost{}
}

// RunTask records the task and reports success.
func (n *NullHost) RunTask(_ context.Context, t *task.Task) (Receipt, error) {
	return n.record("task", t.ID, t.Label), nil
}

// LaunchConfig records the configuration and reports success.
func (n *NullHost) LaunchConfig(_ context.Context, cfg *launch.Config) (Receipt, error) {
	return n.record("launch", cfg.Key, cfg.Name), nil
}

// Invocations returns a copy of everything recorded so far.
func (n *NullHost) Invocations() []Invocation {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Invocation, len(n.invocations))
	copy(out, n.invocations)
	return out
}

func (n *NullHost) record(kind, key, label string) Receipt {
	now := time.Now()
	n.mu.Lock()
	n.invocations = append(n.invocations, Invocation{Kind: kind, Key: key, Label: label, At: now})
	n.mu.Unlock()
	return Receipt{
		DispatchID:  uuid.NewString(),
		HandedOffAt: now,
		Host:        "null",
	}
}
