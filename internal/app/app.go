// Package app wires the runbar subsystems together and drives the
// refresh pipeline.
//
// Bootstrap happens in dependency order: logging, configuration, the
// event bus, the workspace model, the selection store, the registries,
// the selection manager, the host bridge, hooks, the file watcher, and
// the status bar model. The terminal UI itself is only created by Run,
// once a backend has been attached with SetBackend; without a backend
// the app runs headless, which is what the CLI subcommands use.
//
// All re-enumeration flows through a single refresh goroutine fed by a
// coalescing trigger, so a burst of file events, a config change, and
// a manual refresh collapse into one linear pass: refresh registries,
// revalidate selections against the fresh candidates, update the bar,
// publish events.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/config"
	"github.com/dshills/runbar/internal/event"
	"github.com/dshills/runbar/internal/hook"
	"github.com/dshills/runbar/internal/host"
	"github.com/dshills/runbar/internal/logging"
	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
	"github.com/dshills/runbar/internal/registry/task/sources"
	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/state"
	"github.com/dshills/runbar/internal/statusbar"
	"github.com/dshills/runbar/internal/ui"
	"github.com/dshills/runbar/internal/watch"
	"github.com/dshills/runbar/internal/workspace"
)

// ErrAlreadyRunning is returned when Run or SetBackend is called on an
// app that is already running.
var ErrAlreadyRunning = errors.New("app: already running")

// InitError reports which subsystem failed during bootstrap.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Options configures an App.
type Options struct {
	// Roots are the workspace folders, in order. The first is the
	// primary root. Empty means the current directory.
	Roots []string

	// ConfigDir overrides the user configuration directory.
	ConfigDir string

	// StatePath overrides the selection store location.
	StatePath string

	// Ephemeral keeps selections and dispatch history in memory only.
	Ephemeral bool

	// DryRun records dispatches without invoking the host CLI.
	DryRun bool

	// LogLevel and LogFile override the configured logging sink.
	LogLevel string
	LogFile  string

	// Interactive marks a run that will own the terminal. Logging then
	// defaults to a file so stderr stays clean for the status bar.
	Interactive bool

	// Logger bypasses logger construction entirely. Tests use it.
	Logger *zap.Logger
}

// App owns every runbar subsystem and coordinates refreshes,
// selections, and dispatches between them.
type App struct {
	opts Options

	logger *zap.Logger
	cfg    *config.Config
	bus    event.Bus
	ws     *workspace.Workspace
	store  state.Store

	tasks    *task.Registry
	launches *launch.Registry

	selMu sync.RWMutex
	sel   *selection.Manager

	runner   host.TaskRunner
	launcher host.DebugLauncher
	hostName string

	hooks   *hook.Runner
	watcher *watch.Watcher
	bar     *statusbar.Model

	backend ui.Backend
	uiMu    sync.Mutex
	ui      *ui.UI

	// pendingScope accumulates under refreshMu; refreshCh wakes the
	// refresh goroutine, which drains the scope in one pass.
	refreshMu    sync.Mutex
	pendingScope Scope
	refreshCh    chan struct{}

	running      atomic.Bool
	done         chan struct{}
	shutdownOnce sync.Once
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

// New creates an App and bootstraps every subsystem. On error the
// partially built app is released before returning.
func New(opts Options) (*App, error) {
	a := &App{
		opts:      opts,
		done:      make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
	}
	if err := a.bootstrap(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) bootstrap() error {
	// 1. Logging. A provisional logger carries us through config
	// loading; the configured sink replaces it below.
	if a.opts.Logger != nil {
		a.logger = a.opts.Logger
	} else {
		lg, err := logging.New(logging.Options{Level: a.opts.LogLevel})
		if err != nil {
			return &InitError{Component: "logging", Err: err}
		}
		a.logger = lg
	}

	roots := a.opts.Roots
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return &InitError{Component: "workspace", Err: err}
		}
		roots = []string{cwd}
	}

	// 2. Configuration. The workspace layer lives in the primary
	// root's .runbar directory.
	cfgOpts := []config.Option{
		config.WithWorkspaceConfigDir(filepath.Join(roots[0], ".runbar")),
		config.WithWatcher(true),
	}
	if a.opts.ConfigDir != "" {
		cfgOpts = append(cfgOpts, config.WithUserConfigDir(a.opts.ConfigDir))
	}
	a.cfg = config.New(cfgOpts...)
	if err := a.cfg.Load(context.Background()); err != nil {
		a.logger.Warn("loading configuration failed, using defaults", zap.Error(err))
	}

	// Rebuild the logger from config for anything the flags left
	// unset.
	if a.opts.Logger == nil {
		logCfg := a.cfg.Log()
		level := a.opts.LogLevel
		if level == "" {
			level = logCfg.Level
		}
		file := a.opts.LogFile
		if file == "" {
			file = logCfg.File
		}
		if file == "" && a.opts.Interactive {
			file = filepath.Join(a.cfg.UserConfigDir(), "runbar.log")
		}
		lg, err := logging.New(logging.Options{Level: level, File: file})
		if err != nil {
			a.logger.Warn("rebuilding logger from config failed", zap.Error(err))
		} else {
			a.logger = lg
		}
	}

	// 3. Event bus.
	a.bus = event.NewBus()
	if err := a.bus.Start(); err != nil {
		return &InitError{Component: "event bus", Err: err}
	}

	// 4. Workspace.
	ws, err := workspace.New(roots...)
	if err != nil {
		return &InitError{Component: "workspace", Err: err}
	}
	a.ws = ws
	a.ws.OnChange(a.onWorkspaceChange)

	// 5. Selection store. A broken store degrades to memory so the
	// session still works; selections just will not survive it.
	if a.opts.Ephemeral {
		a.store = state.NewMemoryStore()
	} else {
		path := a.opts.StatePath
		if path == "" {
			path = filepath.Join(a.cfg.UserConfigDir(), "state.db")
		}
		st, err := state.Open(path)
		if err != nil {
			a.logger.Warn("opening selection store failed, selections will not persist",
				zap.String("path", path), zap.Error(err))
			a.store = state.NewMemoryStore()
		} else {
			a.store = st
		}
	}

	// 6. Registries.
	taskCfg := a.cfg.Tasks()
	a.tasks = task.New(a.ws, task.WithTTL(taskCfg.CacheTTL))
	a.tasks.RegisterSource(sources.NewRunbarSource())
	a.tasks.RegisterSource(sources.NewEditorSource())
	if taskCfg.IncludeUser {
		a.tasks.RegisterSource(sources.NewUserSource(a.cfg.UserConfigDir()))
	}

	launchOpts := []launch.Option{
		launch.WithLogger(a.logger.Named("launch")),
		launch.WithTTL(taskCfg.CacheTTL),
	}
	if a.cfg.Launch().IncludeGlobal {
		launchOpts = append(launchOpts, launch.WithGlobal(a.globalLaunchEntries))
	}
	a.launches = launch.New(a.ws, launchOpts...)

	// 7. Selection manager, primed from the store.
	a.sel = a.newSelectionManager()
	a.sel.Load(context.Background())

	// 8. Host bridge.
	hostCfg := a.cfg.Host()
	if a.opts.DryRun {
		null := host.NewNullHost()
		a.runner, a.launcher = null, null
		a.hostName = "dry-run"
	} else {
		cmd := host.NewCommandHost(a.ws, host.CommandConfig{
			Command:   hostCfg.Command,
			TaskArgs:  hostCfg.TaskArgs,
			DebugArgs: hostCfg.DebugArgs,
			Timeout:   hostCfg.Timeout,
		}, host.WithLogger(a.logger.Named("host")))
		a.runner, a.launcher = cmd, cmd
		a.hostName = hostCfg.Command
	}

	// 9. Hooks.
	if a.cfg.Hooks().Enabled {
		a.hooks = hook.NewRunner(hook.WithLogger(a.logger.Named("hooks")))
		a.hooks.Bind(a.ws.StableID(), a.folderPaths())
		a.reloadHooks(context.Background())
	}

	// 10. File watcher. Failure is non-fatal; the TTL ticker keeps
	// enumerations fresh without it.
	watchCfg := a.cfg.Watch()
	w, err := watch.New(
		watch.WithDebounce(watchCfg.Debounce),
		watch.WithIgnore(watchCfg.Ignore),
		watch.WithLogger(a.logger.Named("watch")),
	)
	if err != nil {
		a.logger.Warn("file watching unavailable, falling back to periodic refresh", zap.Error(err))
	} else {
		a.watcher = w
	}

	// 11. Status bar model.
	barCfg := a.cfg.Bar()
	a.bar = statusbar.New(
		statusbar.WithIcons(statusbar.IconsNamed(barCfg.Icons)),
		statusbar.WithMessageTTL(barCfg.MessageTTL),
	)

	a.cfg.Subscribe(a.onConfigChange)

	a.logger.Info("runbar initialized",
		zap.String("workspace", a.ws.StableID()),
		zap.Int("folders", len(a.ws.Folders())),
		zap.String("host", a.hostName))
	return nil
}

func (a *App) newSelectionManager() *selection.Manager {
	return selection.New(a.ws.StableID(), a.store,
		selection.WithBus(a.bus),
		selection.WithLogger(a.logger.Named("selection")),
	)
}

// selManager returns the current selection manager. The manager is
// replaced when the folder set, and with it the workspace identity,
// changes.
func (a *App) selManager() *selection.Manager {
	a.selMu.RLock()
	defer a.selMu.RUnlock()
	return a.sel
}

func (a *App) folderPaths() []string {
	folders := a.ws.Folders()
	paths := make([]string, len(folders))
	for i, f := range folders {
		paths[i] = f.Path
	}
	return paths
}

// globalLaunchEntries feeds launch entries defined in the user
// configuration into the launch registry.
func (a *App) globalLaunchEntries() (configs, compounds []map[string]any) {
	return a.configMapSlice("launch.configurations"), a.configMapSlice("launch.compounds")
}

func (a *App) configMapSlice(path string) []map[string]any {
	v, ok := a.cfg.Get(path)
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []map[string]any:
		return vv
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// SetBackend attaches the terminal backend Run will drive. It must be
// called before Run.
func (a *App) SetBackend(b ui.Backend) error {
	if a.running.Load() {
		return ErrAlreadyRunning
	}
	a.backend = b
	return nil
}

// Run performs the initial enumeration, arms the watchers, and blocks
// until the user quits, ctx is cancelled, or Shutdown is called. With
// no backend attached Run is headless: it keeps registries fresh but
// renders nothing.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.backend != nil {
		u := ui.New(a.backend, a.bar,
			ui.WithLogger(a.logger.Named("ui")),
			ui.WithFlashTTL(a.cfg.Bar().MessageTTL),
		)
		a.uiMu.Lock()
		a.ui = u
		a.uiMu.Unlock()
	}

	if err := a.Refresh(ctx, ScopeAll); err != nil {
		a.logger.Warn("initial refresh failed", zap.Error(err))
	}
	a.armWatches()

	a.wg.Add(1)
	go a.refreshLoop(ctx)
	if a.watcher != nil {
		a.wg.Add(1)
		go a.watchLoop(ctx)
	}

	if a.ui == nil {
		select {
		case <-ctx.Done():
		case <-a.done:
		}
		cancel()
		a.wg.Wait()
		return nil
	}

	a.wg.Add(1)
	go a.actionLoop(ctx)

	a.ui.SetTitle(a.title())
	a.updateBody(ctx)

	err := a.ui.Run(ctx)
	cancel()
	a.wg.Wait()
	return err
}

// Shutdown asks a running Run to return. It does not release
// resources; Close does.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() { close(a.done) })
	a.uiMu.Lock()
	u := a.ui
	a.uiMu.Unlock()
	if u != nil {
		u.Stop()
	}
}

// Close releases every subsystem in reverse bootstrap order. It is
// safe to call more than once and on a partially bootstrapped app.
func (a *App) Close() error {
	a.Shutdown()

	var firstErr error
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.hooks != nil {
			a.hooks.Close()
		}
		if a.bus != nil {
			if err := a.bus.Stop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.cfg != nil {
			a.cfg.Close()
		}
		if a.logger != nil {
			_ = a.logger.Sync()
		}
	})
	return firstErr
}

// title summarizes the workspace for the UI header.
func (a *App) title() string {
	folders := a.ws.Folders()
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.Name
	}
	return fmt.Sprintf("runbar %s  [%s]", strings.Join(names, ", "), shortID(a.ws.StableID()))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) publish(ctx context.Context, topic event.Topic, payload any) {
	if err := a.bus.Publish(ctx, event.New(topic, "app", payload)); err != nil {
		a.logger.Debug("publishing event failed",
			zap.String("topic", topic.String()), zap.Error(err))
	}
}

// Workspace returns the workspace model.
func (a *App) Workspace() *workspace.Workspace { return a.ws }

// Tasks returns the task registry.
func (a *App) Tasks() *task.Registry { return a.tasks }

// Launches returns the launch configuration registry.
func (a *App) Launches() *launch.Registry { return a.launches }

// Selections returns the selection manager for the current workspace
// identity.
func (a *App) Selections() *selection.Manager { return a.selManager() }

// Store returns the persistence layer.
func (a *App) Store() state.Store { return a.store }

// Config returns the layered configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Bus returns the event bus.
func (a *App) Bus() event.Bus { return a.bus }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// HostName returns the host command dispatches are handed to.
func (a *App) HostName() string { return a.hostName }
