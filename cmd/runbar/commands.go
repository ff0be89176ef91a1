package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/runbar/internal/app"
	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task/sources"
	"github.com/dshills/runbar/internal/selection"
	"github.com/dshills/runbar/internal/state"
)

var (
	listJSON   bool
	statusJSON bool
)

var listCmd = &cobra.Command{
	Use:       "list [tasks|launch]",
	Short:     "List enumerated tasks or launch configurations",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"tasks", "launch"},
	RunE:      runList,
}

var pickCmd = &cobra.Command{
	Use:   "pick <tasks|launch> <key-or-label>",
	Short: "Persist a selection for this workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runPick,
}

var runCmd = &cobra.Command{
	Use:   "run [key-or-label]",
	Short: "Dispatch a task to the host",
	Long: `Dispatches a task to the host editor CLI. With no argument the
workspace's remembered selection is dispatched; with one, that task
is selected first, then dispatched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, args, selection.KindTask)
	},
}

var debugCmd = &cobra.Command{
	Use:   "debug [key-or-label]",
	Short: "Dispatch a launch configuration to the host",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, args, selection.KindLaunch)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace identity, selections, and recent dispatches",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .runbar/tasks.json and .runbar/launch.json",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("runbar %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

func parseKind(arg string) (selection.Kind, error) {
	switch arg {
	case "task", "tasks":
		return selection.KindTask, nil
	case "launch", "debug":
		return selection.KindLaunch, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want tasks or launch)", arg)
	}
}

// resolveKey accepts either a full registry key or a unique label.
func resolveKey(a *app.App, kind selection.Kind, arg string) (string, error) {
	var matches []string
	switch kind {
	case selection.KindTask:
		if a.Tasks().Exists(arg) {
			return arg, nil
		}
		for _, t := range a.Tasks().Snapshot() {
			if t.Label == arg {
				matches = append(matches, t.ID)
			}
		}
	case selection.KindLaunch:
		if a.Launches().Exists(arg) {
			return arg, nil
		}
		for _, c := range a.Launches().Configs() {
			if c.Name == arg {
				matches = append(matches, c.Key)
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no %s matches %q, try runbar list", kind, arg)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches), use the full key", arg, len(matches))
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Refresh(cmd.Context(), app.ScopeAll); err != nil {
		return err
	}

	want := ""
	if len(args) == 1 {
		want = args[0]
	}

	if listJSON {
		out := map[string]any{}
		if want == "" || want == "tasks" {
			out["tasks"] = a.Tasks().Snapshot()
		}
		if want == "" || want == "launch" {
			out["launch"] = a.Launches().Configs()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	multi := a.Workspace().IsMultiRoot()
	if want == "" || want == "tasks" {
		tasks := a.Tasks().Snapshot()
		sel := a.Selections().Current(selection.KindTask)
		fmt.Printf("Tasks (%d):\n", len(tasks))
		for _, t := range tasks {
			marker := " "
			if sel != nil && sel.Key == t.ID {
				marker = "*"
			}
			fmt.Printf(" %s %-28s %-8s %s\n", marker, t.DisplayLabel(multi), t.Source, t.ID)
		}
	}
	if want == "" || want == "launch" {
		configs := a.Launches().Configs()
		sel := a.Selections().Current(selection.KindLaunch)
		fmt.Printf("Launch configurations (%d):\n", len(configs))
		for _, c := range configs {
			marker := " "
			if sel != nil && sel.Key == c.Key {
				marker = "*"
			}
			mode := strings.TrimSpace(c.Type + " " + c.Request)
			fmt.Printf(" %s %-28s %-12s %s\n", marker, c.DisplayLabel(multi), mode, c.Key)
		}
	}
	return nil
}

func runPick(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.Refresh(ctx, app.ScopeAll); err != nil {
		return err
	}

	key, err := resolveKey(a, kind, args[1])
	if err != nil {
		return err
	}
	if err := a.Select(ctx, kind, key); err != nil {
		return err
	}

	sel := a.Selections().Current(kind)
	fmt.Printf("Selected %s %q\n", kind, sel.Label)
	return nil
}

func runDispatch(cmd *cobra.Command, args []string, kind selection.Kind) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.Refresh(ctx, app.ScopeAll); err != nil {
		return err
	}

	var key string
	if len(args) == 1 {
		key, err = resolveKey(a, kind, args[0])
		if err != nil {
			return err
		}
		if err := a.Select(ctx, kind, key); err != nil {
			return err
		}
	} else {
		sel := a.Selections().Current(kind)
		if sel == nil {
			return fmt.Errorf("no %s selected for this workspace, pick one first", kind)
		}
		key = sel.Key
	}

	if err := a.Dispatch(ctx, kind, key); err != nil {
		return err
	}
	sel := a.Selections().Current(kind)
	fmt.Printf("Handed %q to %s\n", sel.Label, a.HostName())
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.Refresh(ctx, app.ScopeAll); err != nil {
		return err
	}

	ws := a.Workspace()
	taskSel := a.Selections().Current(selection.KindTask)
	launchSel := a.Selections().Current(selection.KindLaunch)
	recents, err := a.Store().RecentDispatches(ctx, ws.StableID(), 5)
	if err != nil {
		return err
	}

	if statusJSON {
		type pickOut struct {
			Key   string `json:"key"`
			Label string `json:"label"`
		}
		type dispatchOut struct {
			Kind    string    `json:"kind"`
			Label   string    `json:"label"`
			Outcome string    `json:"outcome"`
			Detail  string    `json:"detail,omitempty"`
			At      time.Time `json:"at"`
		}
		out := struct {
			WorkspaceID string        `json:"workspaceId"`
			Folders     []string      `json:"folders"`
			Host        string        `json:"host"`
			Tasks       int           `json:"tasks"`
			Launch      int           `json:"launch"`
			TaskPick    *pickOut      `json:"taskSelection,omitempty"`
			LaunchPick  *pickOut      `json:"launchSelection,omitempty"`
			Recent      []dispatchOut `json:"recentDispatches"`
		}{
			WorkspaceID: ws.StableID(),
			Host:        a.HostName(),
			Tasks:       len(a.Tasks().Snapshot()),
			Launch:      len(a.Launches().Configs()),
			Recent:      []dispatchOut{},
		}
		for _, f := range ws.Folders() {
			out.Folders = append(out.Folders, f.Path)
		}
		if taskSel != nil {
			out.TaskPick = &pickOut{Key: taskSel.Key, Label: taskSel.Label}
		}
		if launchSel != nil {
			out.LaunchPick = &pickOut{Key: launchSel.Key, Label: launchSel.Label}
		}
		for _, d := range recents {
			out.Recent = append(out.Recent, dispatchOut{
				Kind:    d.Kind,
				Label:   d.ItemLabel,
				Outcome: d.Outcome,
				Detail:  d.Detail,
				At:      d.StartedAt,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Workspace %s\n", ws.StableID())
	for _, f := range ws.Folders() {
		fmt.Printf("  folder   %s\n", f.Path)
	}
	fmt.Printf("  host     %s\n", a.HostName())
	fmt.Printf("  tasks    %d enumerated, pick: %s\n",
		len(a.Tasks().Snapshot()), pickLabel(taskSel))
	fmt.Printf("  launch   %d enumerated, pick: %s\n",
		len(a.Launches().Configs()), pickLabel(launchSel))

	if len(recents) > 0 {
		fmt.Println("Recent dispatches:")
		for _, d := range recents {
			outcome := d.Outcome
			if d.Outcome == state.OutcomeFailed && d.Detail != "" {
				outcome = "failed: " + d.Detail
			}
			fmt.Printf("  %s  %-6s  %-24s %s\n",
				d.StartedAt.Format(time.RFC3339), d.Kind, d.ItemLabel, outcome)
		}
	}
	return nil
}

func pickLabel(sel *selection.Selection) string {
	if sel == nil {
		return "none"
	}
	return sel.Label
}

func runInit(_ *cobra.Command, _ []string) error {
	dir := "."
	if len(workspaces) > 0 {
		dir = workspaces[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	var firstErr error
	if path, err := sources.CreateSampleTasksFile(abs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		firstErr = err
	} else {
		fmt.Println("Created", path)
	}
	if path, err := launch.CreateSampleLaunchFile(abs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		fmt.Println("Created", path)
	}
	return firstErr
}
