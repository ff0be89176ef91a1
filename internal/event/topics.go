package event

import "time"

// Topics published by runbar components.
const (
	// TopicTaskRefreshed is published after the task registry rebuilds its cache.
	TopicTaskRefreshed Topic = "registry.task.refreshed"

	// TopicLaunchRefreshed is published after the launch registry rebuilds its cache.
	TopicLaunchRefreshed Topic = "registry.launch.refreshed"

	// TopicSelectionChanged is published when the user picks an item.
	TopicSelectionChanged Topic = "selection.changed"

	// TopicSelectionCleared is published when a selection is cleared,
	// either explicitly or because revalidation found no matching candidate.
	TopicSelectionCleared Topic = "selection.cleared"

	// TopicDispatchStarted is published when an item is handed to the host.
	TopicDispatchStarted Topic = "dispatch.started"

	// TopicDispatchFailed is published when the host bridge invocation fails.
	TopicDispatchFailed Topic = "dispatch.failed"

	// TopicConfigChanged is published when a configuration value changes.
	TopicConfigChanged Topic = "config.changed"

	// TopicFolderAdded is published when a workspace folder is added.
	TopicFolderAdded Topic = "workspace.folder.added"

	// TopicFolderRemoved is published when a workspace folder is removed.
	TopicFolderRemoved Topic = "workspace.folder.removed"

	// TopicBarMessage is published to show a transient status bar message.
	TopicBarMessage Topic = "bar.message"
)

// RegistryRefreshed reports a registry cache rebuild.
type RegistryRefreshed struct {
	// Kind is "task" or "launch".
	Kind string

	// Count is the number of candidates after the refresh.
	Count int

	// Added, Removed, and Changed count cache differences from the
	// previous refresh.
	Added   int
	Removed int
	Changed int

	// Duration is how long the refresh took.
	Duration time.Duration
}

// SelectionChanged reports a new selection.
type SelectionChanged struct {
	Kind  string
	Key   string
	Label string
}

// SelectionCleared reports a cleared selection.
type SelectionCleared struct {
	Kind string

	// Key is the previously selected key.
	Key string

	// Reason is "invalidated", "explicit", or "store-error".
	Reason string
}

// DispatchStarted reports an item handed to the host.
type DispatchStarted struct {
	Kind       string
	Key        string
	Label      string
	DispatchID string
}

// DispatchFailed reports a failed host bridge invocation.
type DispatchFailed struct {
	Kind       string
	Key        string
	DispatchID string
	Detail     string
}

// ConfigChanged reports a configuration value change.
type ConfigChanged struct {
	// Key is the dotted settings path, e.g. "host.command".
	Key string
	Old any
	New any
}

// FolderChanged reports a workspace folder addition or removal.
type FolderChanged struct {
	Path string
	Name string
}

// BarMessage requests a transient status bar message.
type BarMessage struct {
	Text string
	TTL  time.Duration
}
