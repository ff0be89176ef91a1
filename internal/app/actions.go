package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/event"
	"github.com/dshills/runbar/internal/host"
	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/state"
	"github.com/dshills/runbar/internal/ui"
)

// actionLoop consumes semantic actions emitted by the UI.
func (a *App) actionLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case act := <-a.ui.Actions():
			a.handleAction(ctx, act)
		}
	}
}

// handleAction executes one action from the UI.
func (a *App) handleAction(ctx context.Context, act ui.Action) {
	switch act.Type {
	case ui.ActionPick:
		a.openPicker(act.Kind, false)

	case ui.ActionRun:
		if sel := a.selManager().Current(act.Kind); sel != nil {
			_ = a.Dispatch(ctx, act.Kind, sel.Key)
		} else {
			// Nothing picked yet; run means pick, then run.
			a.openPicker(act.Kind, true)
		}

	case ui.ActionChoose:
		a.choose(ctx, act.Kind, act.Key, act.RunAfter)

	case ui.ActionRefresh:
		a.RequestRefresh(ScopeAll)

	case ui.ActionQuit:
		a.ui.Stop()
	}
}

// openPicker fills the picker with the current candidates for kind.
func (a *App) openPicker(kind selection.Kind, runAfter bool) {
	multi := a.ws.IsMultiRoot()

	var (
		title string
		items []ui.PickerItem
	)
	switch kind {
	case selection.KindTask:
		title = "Select task"
		for _, t := range a.tasks.Snapshot() {
			items = append(items, ui.PickerItem{
				Key:    t.ID,
				Label:  t.DisplayLabel(multi),
				Detail: taskDetail(t),
			})
		}
	case selection.KindLaunch:
		title = "Select launch configuration"
		for _, c := range a.launches.Configs() {
			items = append(items, ui.PickerItem{
				Key:    c.Key,
				Label:  c.DisplayLabel(multi),
				Detail: launchDetail(c),
			})
		}
	}

	a.ui.OpenPicker(kind, title, items, runAfter)
}

// taskDetail is the dim annotation on a picker row.
func taskDetail(t *task.Task) string {
	if t.Detail != "" {
		return t.Detail
	}
	return t.Command
}

func launchDetail(c *launch.Config) string {
	if c.Detail != "" {
		return c.Detail
	}
	return strings.TrimSpace(c.Type + " " + c.Request)
}

// choose persists a picker choice and optionally dispatches it.
func (a *App) choose(ctx context.Context, kind selection.Kind, key string, runAfter bool) {
	if err := a.Select(ctx, kind, key); err != nil {
		// The candidate vanished between enumeration and choice.
		a.ui.Flash("that item is gone, refreshing")
		a.RequestRefresh(ScopeAll)
		return
	}
	a.ui.Redraw()

	if runAfter {
		_ = a.Dispatch(ctx, kind, key)
	}
}

// Select persists a selection for kind. The key must name a current
// candidate.
func (a *App) Select(ctx context.Context, kind selection.Kind, key string) error {
	label, ok := a.lookupLabel(kind, key)
	if !ok {
		return fmt.Errorf("no %s candidate with key %q", kind, key)
	}

	a.selManager().Select(ctx, kind, key, label)
	if a.hooks != nil {
		a.hooks.OnSelect(ctx, string(kind), key, label)
	}
	a.syncBar()
	return nil
}

func (a *App) lookupLabel(kind selection.Kind, key string) (string, bool) {
	multi := a.ws.IsMultiRoot()
	switch kind {
	case selection.KindTask:
		if t, ok := a.tasks.Get(key); ok {
			return t.DisplayLabel(multi), true
		}
	case selection.KindLaunch:
		if c, ok := a.launches.Config(key); ok {
			return c.DisplayLabel(multi), true
		}
	}
	return "", false
}

// Dispatch hands the item for key to the host and records the
// attempt. The returned error reports a failed hand-off; the record
// and the matching event are written either way, and the selection is
// kept so the user can retry.
func (a *App) Dispatch(ctx context.Context, kind selection.Kind, key string) error {
	label, ok := a.lookupLabel(kind, key)
	if !ok {
		return fmt.Errorf("no %s candidate with key %q", kind, key)
	}

	var (
		receipt host.Receipt
		err     error
	)
	switch kind {
	case selection.KindTask:
		t, _ := a.tasks.Get(key)
		receipt, err = a.runner.RunTask(ctx, t)
	case selection.KindLaunch:
		c, _ := a.launches.Config(key)
		receipt, err = a.launcher.LaunchConfig(ctx, c)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}

	record := state.Dispatch{
		ID:          receipt.DispatchID,
		WorkspaceID: a.ws.StableID(),
		Kind:        string(kind),
		ItemKey:     key,
		ItemLabel:   label,
		StartedAt:   receipt.HandedOffAt,
	}

	if err != nil {
		detail := err.Error()
		var derr *host.DispatchError
		if errors.As(err, &derr) {
			detail = derr.Detail
		}
		record.Outcome = state.OutcomeFailed
		record.Detail = detail

		a.logger.Error("dispatch failed",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err))
		a.publish(ctx, event.TopicDispatchFailed, event.DispatchFailed{
			Kind:       string(kind),
			Key:        key,
			DispatchID: receipt.DispatchID,
			Detail:     detail,
		})
		if a.hooks != nil {
			a.hooks.OnDispatch(ctx, string(kind), key, detail)
		}
		a.flash("dispatch failed: " + detail)
	} else {
		record.Outcome = state.OutcomeHandedOff

		a.logger.Info("handed off to host",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.String("host", receipt.Host),
			zap.String("dispatch_id", receipt.DispatchID))
		a.publish(ctx, event.TopicDispatchStarted, event.DispatchStarted{
			Kind:       string(kind),
			Key:        key,
			Label:      label,
			DispatchID: receipt.DispatchID,
		})
		if a.hooks != nil {
			a.hooks.OnDispatch(ctx, string(kind), key, "ok")
		}
		a.flash(fmt.Sprintf("%s handed to %s", label, a.hostName))
	}

	if rerr := a.store.RecordDispatch(ctx, record); rerr != nil {
		a.logger.Warn("recording dispatch failed", zap.Error(rerr))
	}
	if a.ui != nil {
		a.updateBody(ctx)
		a.ui.Redraw()
	}
	return err
}

// flash shows a transient bar message and mirrors it on the bus for
// any other listener.
func (a *App) flash(msg string) {
	a.publish(context.Background(), event.TopicBarMessage, event.BarMessage{Text: msg})
	if a.ui != nil {
		a.ui.Flash(msg)
	}
}

// updateBody rewrites the informational body: enumeration problems
// first, then recent dispatch history.
func (a *App) updateBody(ctx context.Context) {
	if a.ui == nil {
		return
	}

	var lines []string

	if errs := a.tasks.Errors(); len(errs) > 0 {
		lines = append(lines, fmt.Sprintf("%d task file(s) unreadable, see log", len(errs)))
	}
	if errs := a.launches.Errors(); len(errs) > 0 {
		lines = append(lines, fmt.Sprintf("%d launch file(s) unreadable, see log", len(errs)))
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}

	recents, err := a.store.RecentDispatches(ctx, a.ws.StableID(), 8)
	if err != nil {
		a.logger.Debug("reading dispatch history failed", zap.Error(err))
	}
	if len(recents) == 0 {
		lines = append(lines, "No dispatches yet. Press t to pick a task, r to run it.")
	} else {
		lines = append(lines, "Recent dispatches:")
		for _, d := range recents {
			outcome := "handed off"
			if d.Outcome == state.OutcomeFailed {
				outcome = "failed: " + d.Detail
			}
			lines = append(lines, fmt.Sprintf("  %s  %-6s  %-28s %s",
				d.StartedAt.Format("15:04:05"), d.Kind, d.ItemLabel, outcome))
		}
	}

	a.ui.SetBody(lines)
}
