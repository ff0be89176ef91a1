package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/config/notify"
	"github.com/dshills/runbar/internal/event"
	"github.com/dshills/runbar/internal/hook"
	"github.com/dshills/runbar/internal/registry/task/sources"
	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/watch"
	"github.com/dshills/runbar/internal/workspace"
)

// Scope selects which registries a refresh covers.
type Scope uint8

const (
	// ScopeTasks refreshes the task registry.
	ScopeTasks Scope = 1 << iota

	// ScopeLaunch refreshes the launch registry.
	ScopeLaunch
)

// ScopeAll refreshes every registry.
const ScopeAll = ScopeTasks | ScopeLaunch

// Has reports whether s includes o.
func (s Scope) Has(o Scope) bool { return s&o != 0 }

// RequestRefresh schedules a refresh of scope. Requests coalesce: a
// burst of file events becomes one pass over the union of their
// scopes.
func (a *App) RequestRefresh(scope Scope) {
	a.refreshMu.Lock()
	a.pendingScope |= scope
	a.refreshMu.Unlock()
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

// refreshLoop serializes refreshes on one goroutine. The ticker keeps
// enumerations fresh when the watcher is unavailable or has died.
func (a *App) refreshLoop(ctx context.Context) {
	defer a.wg.Done()

	interval := a.cfg.Tasks().CacheTTL
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-a.refreshCh:
			a.refreshMu.Lock()
			scope := a.pendingScope
			a.pendingScope = 0
			a.refreshMu.Unlock()
			if scope == 0 {
				continue
			}
			if err := a.Refresh(ctx, scope); err != nil {
				a.logger.Error("refresh failed", zap.Error(err))
			}
		case <-ticker.C:
			if a.watcher == nil || a.watcher.Dead() {
				a.RequestRefresh(ScopeAll)
			}
		}
	}
}

// Refresh runs the pipeline for scope: re-enumerate, revalidate the
// persisted selection against the fresh candidates, update the bar,
// publish. CLI subcommands call it directly; interactive sessions go
// through the refresh goroutine.
func (a *App) Refresh(ctx context.Context, scope Scope) error {
	var firstErr error

	if scope.Has(ScopeTasks) {
		if err := a.refreshTasks(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if scope.Has(ScopeLaunch) {
		if err := a.refreshLaunches(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.syncBar()
	if a.ui != nil {
		a.updateBody(ctx)
		a.ui.Redraw()
	}
	return firstErr
}

func (a *App) refreshTasks(ctx context.Context) error {
	res, err := a.tasks.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing tasks: %w", err)
	}
	for _, derr := range res.Errors {
		a.logger.Warn("task file unreadable", zap.Error(derr))
	}

	a.selManager().Revalidate(ctx, selection.KindTask, a.tasks.Exists)

	a.publish(ctx, event.TopicTaskRefreshed, event.RegistryRefreshed{
		Kind:     string(selection.KindTask),
		Count:    len(res.Tasks),
		Added:    len(res.Added),
		Removed:  len(res.Removed),
		Changed:  len(res.Changed),
		Duration: res.Duration,
	})
	if a.hooks != nil {
		a.hooks.OnRefresh(ctx, string(selection.KindTask), len(res.Tasks))
	}
	a.bar.SetRefreshed(res.Timestamp)
	return nil
}

func (a *App) refreshLaunches(ctx context.Context) error {
	res, err := a.launches.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing launch configurations: %w", err)
	}
	for _, rerr := range res.Errors {
		a.logger.Warn("launch file unreadable", zap.Error(rerr))
	}

	a.selManager().Revalidate(ctx, selection.KindLaunch, a.launches.Exists)

	a.publish(ctx, event.TopicLaunchRefreshed, event.RegistryRefreshed{
		Kind:     string(selection.KindLaunch),
		Count:    len(res.Configs),
		Added:    len(res.Added),
		Removed:  len(res.Removed),
		Changed:  len(res.Changed),
		Duration: res.Duration,
	})
	if a.hooks != nil {
		a.hooks.OnRefresh(ctx, string(selection.KindLaunch), len(res.Configs))
	}
	a.bar.SetRefreshed(res.Timestamp)
	return nil
}

// syncBar pushes candidate counts and selection labels into the bar
// model.
func (a *App) syncBar() {
	multi := a.ws.IsMultiRoot()
	a.bar.SetCandidates(selection.KindTask, len(a.tasks.Snapshot()))
	a.bar.SetCandidates(selection.KindLaunch, len(a.launches.Configs()))
	a.bar.SetSelection(selection.KindTask, a.selectionLabel(selection.KindTask, multi))
	a.bar.SetSelection(selection.KindLaunch, a.selectionLabel(selection.KindLaunch, multi))
}

// selectionLabel prefers the live candidate's display label; the
// stored label covers the window before the first refresh completes.
func (a *App) selectionLabel(kind selection.Kind, multi bool) string {
	sel := a.selManager().Current(kind)
	if sel == nil {
		return ""
	}
	switch kind {
	case selection.KindTask:
		if t, ok := a.tasks.Get(sel.Key); ok {
			return t.DisplayLabel(multi)
		}
	case selection.KindLaunch:
		if c, ok := a.launches.Config(sel.Key); ok {
			return c.DisplayLabel(multi)
		}
	}
	return sel.Label
}

// armWatches points the watcher at each folder root and its existing
// definition directories. A .runbar or .vscode directory created
// later is noticed through the folder-root watch.
func (a *App) armWatches() {
	if a.watcher == nil {
		return
	}
	for _, f := range a.ws.Folders() {
		a.armFolder(f)
	}
}

func (a *App) armFolder(f workspace.Folder) {
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Add(f.Path); err != nil {
		a.logger.Warn("watching folder failed",
			zap.String("folder", f.Path), zap.Error(err))
		return
	}
	for _, sub := range []string{".runbar", ".vscode"} {
		dir := filepath.Join(f.Path, sub)
		if err := a.watcher.Add(dir); err != nil && !errors.Is(err, watch.ErrPathNotExist) {
			a.logger.Warn("watching definition directory failed",
				zap.String("dir", dir), zap.Error(err))
		}
	}
}

func (a *App) disarmFolder(f workspace.Folder) {
	if a.watcher == nil {
		return
	}
	prefix := f.Path + string(filepath.Separator)
	for _, dir := range a.watcher.Watched() {
		if dir == f.Path || strings.HasPrefix(dir, prefix) {
			_ = a.watcher.Remove(dir)
		}
	}
}

// watchLoop translates file events into refresh requests.
func (a *App) watchLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.watcher.Events():
			if !ok {
				return
			}
			a.handleWatchEvent(ctx, ev)
		}
	}
}

func (a *App) handleWatchEvent(ctx context.Context, ev watch.Event) {
	base := filepath.Base(ev.Path)
	dir := filepath.Base(filepath.Dir(ev.Path))

	switch {
	case base == hook.FileName && dir == ".runbar":
		a.logger.Info("hooks file changed, reloading", zap.String("path", ev.Path))
		a.reloadHooks(ctx)
	case base == "tasks.json" && (dir == ".runbar" || dir == ".vscode"):
		a.RequestRefresh(ScopeTasks)
	case base == "launch.json" && (dir == ".runbar" || dir == ".vscode"):
		a.RequestRefresh(ScopeLaunch)
	case base == ".runbar" || base == ".vscode":
		// The definition directory itself appeared or vanished.
		a.RequestRefresh(ScopeAll)
	}
}

// reloadHooks re-arms the hooks file. A missing file disarms hooks,
// which is how users turn them off; a broken file disarms them too,
// with a warning.
func (a *App) reloadHooks(ctx context.Context) {
	if a.hooks == nil {
		return
	}
	path := a.cfg.Hooks().Path
	if path == "" {
		path = hook.FileFor(a.ws.Primary().Path)
	}
	if _, err := os.Stat(path); err != nil {
		if a.hooks.Loaded() {
			a.logger.Info("hooks file removed, disarming", zap.String("path", path))
			a.hooks.Unload()
		} else {
			a.logger.Debug("no hooks file", zap.String("path", path))
		}
		return
	}
	if err := a.hooks.LoadFile(ctx, path); err != nil {
		a.logger.Warn("hooks file failed to load", zap.Error(err))
	}
}

// onWorkspaceChange reacts to folders joining or leaving at runtime.
// The folder set defines the workspace identity, so selections are
// reloaded under the new ID and hooks are rebound.
func (a *App) onWorkspaceChange(ev workspace.ChangeEvent) {
	ctx := context.Background()

	topic := event.TopicFolderAdded
	if ev.Type == workspace.ChangeFolderRemoved {
		topic = event.TopicFolderRemoved
	}
	a.publish(ctx, topic, event.FolderChanged{Path: ev.Folder.Path, Name: ev.Folder.Name})

	switch ev.Type {
	case workspace.ChangeFolderAdded:
		a.armFolder(ev.Folder)
	case workspace.ChangeFolderRemoved:
		a.disarmFolder(ev.Folder)
	}

	m := a.newSelectionManager()
	m.Load(ctx)
	a.selMu.Lock()
	a.sel = m
	a.selMu.Unlock()

	if a.hooks != nil {
		a.hooks.Bind(a.ws.StableID(), a.folderPaths())
	}
	a.RequestRefresh(ScopeAll)
}

// onConfigChange republishes configuration changes on the bus and
// schedules a refresh, since toggles like tasks.include_user change
// what the registries enumerate.
func (a *App) onConfigChange(change notify.Change) {
	a.publish(context.Background(), event.TopicConfigChanged, event.ConfigChanged{
		Key: change.Path,
		Old: change.OldValue,
		New: change.NewValue,
	})

	if a.cfg.Tasks().IncludeUser {
		a.tasks.RegisterSource(sources.NewUserSource(a.cfg.UserConfigDir()))
	} else {
		a.tasks.UnregisterSource("user")
	}

	a.RequestRefresh(ScopeAll)
}
