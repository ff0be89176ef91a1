package host

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/runbar/internal/registry/launch"
	"github.com/dshills/runbar/internal/registry/task"
	"github.com/dshills/runbar/internal/vars"
	"github.com/dshills/runbar/internal/workspace"
)

// maxDetailLen caps the stderr snippet carried on a DispatchError.
const maxDetailLen = 160

// CommandConfig holds the bridge invocation templates. Argument
// entries pass through variable substitution before the exec.
type CommandConfig struct {
	// Command is the host CLI, e.g. "code".
	Command string

	// TaskArgs is the argument template for task dispatches.
	TaskArgs []string

	// DebugArgs is the argument template for launch dispatches.
	DebugArgs []string

	// Timeout bounds one bridge invocation.
	Timeout time.Duration
}

// CommandHost dispatches by running the host editor's CLI once per
// item.
type CommandHost struct {
	ws       *workspace.Workspace
	cfg      CommandConfig
	resolver *vars.Resolver
	logger   *zap.Logger
}

var (
	_ TaskRunner    = (*CommandHost)(nil)
	_ DebugLauncher = (*CommandHost)(nil)
)

// CommandOption configures a CommandHost.
type CommandOption func(*CommandHost)

// WithLogger sets the logger for dispatch activity.
func WithLogger(logger *zap.Logger) CommandOption {
	return func(h *CommandHost) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithResolver overrides the variable resolver.
func WithResolver(r *vars.Resolver) CommandOption {
	return func(h *CommandHost) {
		if r != nil {
			h.resolver = r
		}
	}
}

// NewCommandHost creates a host bridge for the given workspace.
func NewCommandHost(ws *workspace.Workspace, cfg CommandConfig, opts ...CommandOption) *CommandHost {
	h := &CommandHost{
		ws:       ws,
		cfg:      cfg,
		resolver: vars.NewResolver(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunTask hands one task to the host.
func (h *CommandHost) RunTask(ctx context.Context, t *task.Task) (Receipt, error) {
	vctx := h.varsContext(t.Folder, t.FolderName, map[string]string{
		"taskKey":    t.ID,
		"taskLabel":  t.Label,
		"taskFile":   t.SourceFile,
		"taskSource": t.Source,
	})
	return h.dispatch(ctx, h.cfg.TaskArgs, vctx)
}

// LaunchConfig hands one launch configuration to the host. Compounds
// dispatch by name like any other configuration; expanding members is
// the host's job.
func (h *CommandHost) LaunchConfig(ctx context.Context, cfg *launch.Config) (Receipt, error) {
	vctx := h.varsContext(cfg.Folder, cfg.FolderName, map[string]string{
		"configKey":    cfg.Key,
		"configName":   cfg.Name,
		"configFolder": cfg.FolderName,
		"configFile":   cfg.SourceFile,
	})
	return h.dispatch(ctx, h.cfg.DebugArgs, vctx)
}

// dispatch runs the host CLI once with the resolved template.
func (h *CommandHost) dispatch(ctx context.Context, template []string, vctx *vars.Context) (Receipt, error) {
	receipt := Receipt{
		DispatchID: uuid.NewString(),
		Host:       h.cfg.Command,
	}

	args := h.resolver.ResolveArgs(template, vctx)

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.cfg.Command, args...)
	cmd.Dir = vctx.Folder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	receipt.HandedOffAt = time.Now()
	h.logger.Debug("invoking host bridge",
		zap.String("dispatch_id", receipt.DispatchID),
		zap.String("command", h.cfg.Command),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		detail := firstLine(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		h.logger.Warn("host bridge invocation failed",
			zap.String("dispatch_id", receipt.DispatchID),
			zap.String("detail", detail),
			zap.Error(err))
		return receipt, &DispatchError{Host: h.cfg.Command, Detail: detail, Err: err}
	}

	return receipt, nil
}

// varsContext builds the substitution context for one dispatch. Items
// without a folder, such as user tasks and global launch entries, run
// from the primary folder.
func (h *CommandHost) varsContext(folder, folderName string, values map[string]string) *vars.Context {
	if folder == "" {
		primary := h.ws.Primary()
		folder = primary.Path
	}
	values["folder"] = folder
	values["folderName"] = folderName
	return &vars.Context{
		Folder:      folder,
		FolderName:  folderName,
		WorkspaceID: h.ws.StableID(),
		Values:      values,
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "\r")
	if len(s) > maxDetailLen {
		s = s[:maxDetailLen]
	}
	return s
}
