// Package vars provides variable substitution for dispatch argument
// templates.
//
// Templates support ${var}, ${var:default}, ${env:VAR}, ${env:VAR:default},
// ${q:var}, and bare $var syntax. The q namespace resolves a variable
// and URL-query-escapes the result, for templates that build host URIs.
// Unresolvable variables are left verbatim so mistakes stay visible.
package vars

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// pattern matches ${var}, ${var:default}, ${ns:var}, and $var.
var pattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Context carries the dispatch-scoped values available to templates.
type Context struct {
	// Folder is the workspace folder path the dispatched item belongs to.
	Folder string

	// FolderName is the folder's display name.
	FolderName string

	// WorkspaceID is the stable workspace identifier.
	WorkspaceID string

	// Values holds per-dispatch variables such as taskKey or configName.
	Values map[string]string
}

// Provider produces a dynamic variable value.
type Provider func(ctx *Context) string

// Resolver substitutes variables in template strings.
type Resolver struct {
	mu        sync.RWMutex
	custom    map[string]string
	providers map[string]Provider
}

// NewResolver creates a resolver with the builtin providers registered.
func NewResolver() *Resolver {
	r := &Resolver{
		custom:    make(map[string]string),
		providers: make(map[string]Provider),
	}
	r.registerBuiltinProviders()
	return r
}

// Set sets a custom variable value. Custom values take precedence over
// providers and context values.
func (r *Resolver) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[name] = value
}

// Delete removes a custom variable.
func (r *Resolver) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.custom, name)
}

// RegisterProvider registers a dynamic variable provider.
func (r *Resolver) RegisterProvider(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Resolve replaces variables in input using the given context. A nil
// context resolves builtin providers against the process environment
// only.
func (r *Resolver) Resolve(input string, ctx *Context) string {
	if ctx == nil {
		ctx = &Context{}
	}

	return pattern.ReplaceAllStringFunc(input, func(match string) string {
		var name, defaultVal string
		hasDefault := false

		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]

			// ${env:VAR} and ${env:VAR:default}
			if envPart, ok := strings.CutPrefix(inner, "env:"); ok {
				envName, envDefault, _ := strings.Cut(envPart, ":")
				if val := os.Getenv(envName); val != "" {
					return val
				}
				return envDefault
			}

			// ${q:var} resolves var and query-escapes the result.
			if qName, ok := strings.CutPrefix(inner, "q:"); ok {
				if value, ok := r.lookup(qName, ctx); ok {
					return url.QueryEscape(value)
				}
				return match
			}

			if idx := strings.Index(inner, ":"); idx >= 0 {
				name = inner[:idx]
				defaultVal = inner[idx+1:]
				hasDefault = true
			} else {
				name = inner
			}
		} else {
			// $var format
			name = match[1:]
		}

		if value, ok := r.lookup(name, ctx); ok {
			return value
		}
		if hasDefault {
			return defaultVal
		}
		return match
	})
}

// ResolveArgs resolves every element of an argument template.
func (r *Resolver) ResolveArgs(args []string, ctx *Context) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Resolve(a, ctx)
	}
	return out
}

// lookup resolves a variable name through custom values, providers,
// context values, and finally the environment.
func (r *Resolver) lookup(name string, ctx *Context) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.custom[name]; ok {
		return v, true
	}
	if provider, ok := r.providers[name]; ok {
		if v := provider(ctx); v != "" {
			return v, true
		}
		return "", false
	}
	if v, ok := ctx.Values[name]; ok {
		return v, true
	}
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	return "", false
}

func (r *Resolver) registerBuiltinProviders() {
	// workspaceFolder - the folder of the dispatched item
	r.providers["workspaceFolder"] = func(ctx *Context) string {
		if ctx.Folder != "" {
			return ctx.Folder
		}
		cwd, _ := os.Getwd()
		return cwd
	}

	// workspaceFolderBasename - the name of that folder
	r.providers["workspaceFolderBasename"] = func(ctx *Context) string {
		if ctx.FolderName != "" {
			return ctx.FolderName
		}
		return filepath.Base(r.providers["workspaceFolder"](ctx))
	}

	// workspaceId - the stable workspace identifier
	r.providers["workspaceId"] = func(ctx *Context) string {
		return ctx.WorkspaceID
	}

	// cwd - the current working directory
	r.providers["cwd"] = func(_ *Context) string {
		cwd, _ := os.Getwd()
		return cwd
	}

	// userHome - the user's home directory
	r.providers["userHome"] = func(_ *Context) string {
		home, _ := os.UserHomeDir()
		return home
	}

	// pathSeparator - the OS path separator
	r.providers["pathSeparator"] = func(_ *Context) string {
		return string(filepath.Separator)
	}

	// execPath - this executable's path
	r.providers["execPath"] = func(_ *Context) string {
		exe, _ := os.Executable()
		return exe
	}
}
