// Package hook runs user extension points written in Lua.
//
// A workspace may provide a .runbar/hooks.lua file defining any of
// three functions:
//
//	function on_refresh(kind, count) end
//	function on_select(kind, key, label) end
//	function on_dispatch(kind, key, outcome) end
//
// The Runner executes the file in a sandboxed state and fires the
// functions as the pipeline progresses. The sandbox opens only the
// base, table, string, and math libraries. The code loaders (dofile,
// loadfile, load, loadstring) are removed, the io, os, debug, and
// package libraries are never opened, and print is redirected to the
// log because the status bar owns the terminal. A read-only runbar
// table exposes the workspace identity and a log function.
//
// Hooks are advisory: a failing hook is logged and skipped, and each
// invocation runs under a time budget so the refresh pipeline cannot
// stall on user code.
package hook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// DefaultCallBudget bounds a single hook invocation, file loading
// included. A hook that runs past the budget is aborted and logged.
const DefaultCallBudget = 100 * time.Millisecond

// FileName is the hooks file looked up under a folder's .runbar
// directory.
const FileName = "hooks.lua"

// Hook function names recognized in a hooks file.
const (
	fnRefresh  = "on_refresh"
	fnSelect   = "on_select"
	fnDispatch = "on_dispatch"
)

var fnNames = []string{fnRefresh, fnSelect, fnDispatch}

// ErrClosed is returned when loading into a closed runner.
var ErrClosed = errors.New("hook: runner is closed")

// FileFor returns the conventional hooks file path for a folder.
func FileFor(folder string) string {
	return filepath.Join(folder, ".runbar", FileName)
}

// Runner owns the sandboxed Lua state hooks execute in.
//
// gopher-lua states are not goroutine-safe, so every entry point takes
// the runner mutex. The refresh and action goroutines can share one
// Runner without further coordination.
type Runner struct {
	mu     sync.Mutex
	L      *lua.LState
	logger *zap.Logger
	budget time.Duration
	path   string
	loaded bool
	closed bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger routes hook diagnostics, the runbar.log function, and
// redirected print output to the given logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCallBudget overrides the per-invocation time budget.
func WithCallBudget(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.budget = d
		}
	}
}

// NewRunner creates a sandboxed runner with no hooks loaded. Firing a
// hook on an empty runner is a cheap no-op.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: zap.NewNop(),
		budget: DefaultCallBudget,
	}
	for _, opt := range opts {
		opt(r)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// OpenBase registers the code loaders; hooks never get them. The
	// io, os, debug, and package libraries are not opened at all, so
	// os.execute and file access do not exist in this state.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	r.L = L
	L.SetGlobal("print", L.NewFunction(r.luaPrint))
	return r
}

// Bind installs the read-only runbar table. Call it before LoadFile so
// top-level code in the hooks file already sees the workspace; call it
// again after the folder set changes.
func (r *Runner) Bind(workspaceID string, folders []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	inner := r.L.NewTable()
	inner.RawSetString("workspace_id", lua.LString(workspaceID))
	ft := r.L.NewTable()
	for i, f := range folders {
		ft.RawSetInt(i+1, lua.LString(f))
	}
	inner.RawSetString("folders", ft)
	inner.RawSetString("log", r.L.NewFunction(r.luaLog))

	// The global is an empty proxy whose metatable forwards reads to
	// the real table; writes raise instead of mutating shared state.
	proxy := r.L.NewTable()
	mt := r.L.NewTable()
	mt.RawSetString("__index", inner)
	mt.RawSetString("__newindex", r.L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("runbar table is read-only")
		return 0
	}))
	mt.RawSetString("__metatable", lua.LFalse)
	r.L.SetMetatable(proxy, mt)
	r.L.SetGlobal("runbar", proxy)
}

// LoadFile executes a hooks file, replacing whatever hook functions a
// previous load defined. A failed load leaves the runner usable with
// no hooks armed; the caller logs and the pipeline carries on.
func (r *Runner) LoadFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	// Drop definitions from the previous load so a hook removed from
	// the file stops firing after a reload.
	for _, name := range fnNames {
		r.L.SetGlobal(name, lua.LNil)
	}
	r.loaded = false
	r.path = path

	if err := r.protect(ctx, func() error { return r.L.DoFile(path) }); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	r.loaded = true
	return nil
}

// Unload drops every armed hook, as when the hooks file is deleted.
// The runner stays usable for a later LoadFile.
func (r *Runner) Unload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, name := range fnNames {
		r.L.SetGlobal(name, lua.LNil)
	}
	r.loaded = false
}

// Loaded reports whether a hooks file is currently armed.
func (r *Runner) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Path returns the most recently loaded hooks file.
func (r *Runner) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// OnRefresh fires after a registry refresh completes. Kind is "task"
// or "launch" and count is the candidate total for that kind.
func (r *Runner) OnRefresh(ctx context.Context, kind string, count int) {
	r.fire(ctx, fnRefresh, lua.LString(kind), lua.LNumber(count))
}

// OnSelect fires after a selection is persisted.
func (r *Runner) OnSelect(ctx context.Context, kind, key, label string) {
	r.fire(ctx, fnSelect, lua.LString(kind), lua.LString(key), lua.LString(label))
}

// OnDispatch fires after a dispatch attempt. Outcome is "ok" or the
// failure description.
func (r *Runner) OnDispatch(ctx context.Context, kind, key, outcome string) {
	r.fire(ctx, fnDispatch, lua.LString(kind), lua.LString(key), lua.LString(outcome))
}

// Close releases the Lua state. Loading and firing on a closed runner
// are no-ops apart from LoadFile returning ErrClosed.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.L.Close()
	r.closed = true
}

// fire invokes one hook function if the user defined it. Errors are
// logged and swallowed.
func (r *Runner) fire(ctx context.Context, name string, args ...lua.LValue) {
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.loaded {
		return
	}

	fn := r.L.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if fn.Type() != lua.LTFunction {
		r.logger.Warn("hook is not a function",
			zap.String("hook", name),
			zap.String("type", fn.Type().String()))
		return
	}

	err := r.protect(ctx, func() error {
		r.L.Push(fn)
		for _, arg := range args {
			r.L.Push(arg)
		}
		return r.L.PCall(len(args), 0, nil)
	})
	if err != nil {
		r.logger.Warn("hook failed", zap.String("hook", name), zap.Error(err))
	}
}

// protect runs fn under the call budget with panic recovery. The
// context is armed on the Lua state, so a hook stuck in a loop is
// aborted when the budget expires instead of stalling the caller.
func (r *Runner) protect(ctx context.Context, fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn()
}

// luaLog implements runbar.log(level, msg).
func (r *Runner) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	switch level {
	case "debug":
		r.logger.Debug(msg)
	case "warn":
		r.logger.Warn(msg)
	case "error":
		r.logger.Error(msg)
	default:
		r.logger.Info(msg)
	}
	return 0
}

// luaPrint replaces the base library print. Writing to stdout would
// scribble over the terminal the status bar owns, so output lands in
// the log instead.
func (r *Runner) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	r.logger.Info("hook print", zap.String("text", strings.Join(parts, "\t")))
	return 0
}
