// Package workspace models the folder set runbar operates on and derives
// the stable identifier that selection persistence is keyed by.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Common errors.
var (
	ErrNoFolders      = errors.New("workspace has no folders")
	ErrFolderNotFound = errors.New("folder not found in workspace")
	ErrFolderExists   = errors.New("folder already in workspace")
	ErrInvalidPath    = errors.New("invalid folder path")
)

// Folder is a single workspace root.
type Folder struct {
	// URI is the folder path as a file:// URI.
	URI string
	// Path is the absolute, symlink-resolved file system path.
	Path string
	// Name is the display name for the folder.
	Name string
}

// ChangeType indicates the kind of workspace change.
type ChangeType int

const (
	// ChangeFolderAdded indicates a folder was added.
	ChangeFolderAdded ChangeType = iota
	// ChangeFolderRemoved indicates a folder was removed.
	ChangeFolderRemoved
)

// ChangeEvent describes a folder set change.
type ChangeEvent struct {
	Type   ChangeType
	Folder Folder
}

// Workspace is an ordered collection of root folders. Folder order is
// significant: the first folder is the primary root and candidate
// ordering follows it. The identifier returned by StableID is
// order-independent so the same folder set always maps to the same
// persisted selections.
type Workspace struct {
	mu      sync.RWMutex
	folders []Folder

	onChange []func(ChangeEvent)
}

// New creates a workspace from the given root paths. Paths are made
// absolute, symlink-resolved, and deduplicated; order of first
// appearance is preserved.
func New(roots ...string) (*Workspace, error) {
	if len(roots) == 0 {
		return nil, ErrNoFolders
	}

	w := &Workspace{}
	seen := make(map[string]bool, len(roots))
	for _, root := range roots {
		resolved, err := resolvePath(root)
		if err != nil {
			return nil, err
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		w.folders = append(w.folders, newFolder(resolved))
	}
	return w, nil
}

func newFolder(resolved string) Folder {
	return Folder{
		Path: resolved,
		URI:  PathToURI(resolved),
		Name: filepath.Base(resolved),
	}
}

// resolvePath makes a path absolute and resolves symlinks. A path that
// does not exist yet resolves to its cleaned absolute form.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// StableID derives the persistent identifier for this folder set:
// sha256 over the sorted resolved paths, hex-encoded, truncated to 32
// characters. Independent of folder order and path spelling.
func (w *Workspace) StableID() string {
	w.mu.RLock()
	paths := make([]string, len(w.folders))
	for i, f := range w.folders {
		paths[i] = f.Path
	}
	w.mu.RUnlock()

	sort.Strings(paths)
	sum := sha256.Sum256([]byte(strings.Join(paths, "\n")))
	return hex.EncodeToString(sum[:])[:32]
}

// Primary returns the first workspace folder.
func (w *Workspace) Primary() Folder {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.folders) == 0 {
		return Folder{}
	}
	return w.folders[0]
}

// Folders returns a copy of the folder list in order.
func (w *Workspace) Folders() []Folder {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Folder, len(w.folders))
	copy(out, w.folders)
	return out
}

// FolderCount returns the number of folders.
func (w *Workspace) FolderCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.folders)
}

// IsMultiRoot reports whether more than one root folder is present.
func (w *Workspace) IsMultiRoot() bool {
	return w.FolderCount() > 1
}

// FolderIndex returns the position of the folder with the given name,
// or -1 when absent. Used for candidate ordering.
func (w *Workspace) FolderIndex(name string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i, f := range w.folders {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// AddFolder appends a root folder and notifies change listeners.
func (w *Workspace) AddFolder(path string) (Folder, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Folder{}, err
	}

	w.mu.Lock()
	for _, f := range w.folders {
		if f.Path == resolved {
			w.mu.Unlock()
			return Folder{}, ErrFolderExists
		}
	}
	folder := newFolder(resolved)
	w.folders = append(w.folders, folder)
	callbacks := w.copyCallbacks()
	w.mu.Unlock()

	notify(callbacks, ChangeEvent{Type: ChangeFolderAdded, Folder: folder})
	return folder, nil
}

// RemoveFolder removes a root folder and notifies change listeners.
// The last folder cannot be removed.
func (w *Workspace) RemoveFolder(path string) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	idx := -1
	var removed Folder
	for i, f := range w.folders {
		if f.Path == resolved {
			idx = i
			removed = f
			break
		}
	}
	if idx == -1 {
		w.mu.Unlock()
		return ErrFolderNotFound
	}
	if len(w.folders) == 1 {
		w.mu.Unlock()
		return ErrNoFolders
	}
	w.folders = append(w.folders[:idx], w.folders[idx+1:]...)
	callbacks := w.copyCallbacks()
	w.mu.Unlock()

	notify(callbacks, ChangeEvent{Type: ChangeFolderRemoved, Folder: removed})
	return nil
}

// ContainingFolder returns the workspace folder that contains the path.
func (w *Workspace) ContainingFolder(path string) (Folder, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Folder{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, f := range w.folders {
		if isSubPath(f.Path, abs) {
			return f, true
		}
	}
	return Folder{}, false
}

// RelativePath returns the path relative to its containing folder.
func (w *Workspace) RelativePath(path string) (string, error) {
	folder, ok := w.ContainingFolder(path)
	if !ok {
		return "", ErrFolderNotFound
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Rel(folder.Path, abs)
}

// OnChange registers a callback for folder set changes.
func (w *Workspace) OnChange(fn func(ChangeEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// copyCallbacks must be called with the lock held.
func (w *Workspace) copyCallbacks() []func(ChangeEvent) {
	callbacks := make([]func(ChangeEvent), len(w.onChange))
	copy(callbacks, w.onChange)
	return callbacks
}

// notify invokes callbacks outside the workspace lock.
func notify(callbacks []func(ChangeEvent), event ChangeEvent) {
	for _, cb := range callbacks {
		cb(event)
	}
}

// PathToURI converts a file path to a file:// URI.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(abs),
	}
	return u.String()
}

// URIToPath converts a file:// URI to a file path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", ErrInvalidPath
	}
	decoded, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", err
	}
	path := filepath.FromSlash(decoded)

	// Strip the leading slash from Windows drive paths.
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return path, nil
}

// isSubPath checks whether child is parent or lives under it.
func isSubPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)

	if child == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(filepath.Separator)) {
		parent += string(filepath.Separator)
	}
	return strings.HasPrefix(child, parent)
}
