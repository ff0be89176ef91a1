// Package host delegates execution of a picked item to the editor.
//
// runbar never runs a task or starts a debug session itself. Each
// dispatch is one invocation of the host editor's CLI built from a
// configurable argument template; the host takes over from there and
// runbar only learns whether the hand-off itself worked.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
)

// Receipt describes one hand-off attempt. The dispatch ID is valid
// even when the hand-off fails, so failures can be recorded too.
type Receipt struct {
	// DispatchID uniquely identifies the attempt.
	DispatchID string

	// HandedOffAt is when the bridge invocation started.
	HandedOffAt time.Time

	// Host is the command the item was handed to.
	Host string
}

// TaskRunner hands a task to the host.
type TaskRunner interface {
	RunTask(ctx context.Context, t *task.Task) (Receipt, error)
}

// DebugLauncher hands a launch configuration to the host.
type DebugLauncher interface {
	LaunchConfig(ctx context.Context, cfg *launch.Config) (Receipt, error)
}

// DispatchError reports a failed bridge invocation.
type DispatchError struct {
	// Host is the command that was invoked.
	Host string

	// Detail is the first stderr line, or the raw error text when the
	// host produced no output.
	Detail string

	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch via %s failed: %s", e.Host, e.Detail)
}

func (e *DispatchError) Unwrap() error { return e.Err }
