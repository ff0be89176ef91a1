package launch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Config represents one launch configuration or compound.
type Config struct {
	// Key is "<folder-name>|<name>"; global entries use "|<name>".
	Key string `json:"key"`

	// Name is the configuration's display name.
	Name string `json:"name"`

	// Type is the debug adapter type ("go", "node", "python", ...).
	// Empty for compounds.
	Type string `json:"type,omitempty"`

	// Request is "launch" or "attach". Empty for compounds.
	Request string `json:"request,omitempty"`

	// Program is the program to debug, verbatim (may contain ${...}
	// variables the host resolves).
	Program string `json:"program,omitempty"`

	// Module is the module to debug (python-style configurations).
	Module string `json:"module,omitempty"`

	// Args are the program arguments.
	Args []string `json:"args,omitempty"`

	// Cwd is the working directory, verbatim.
	Cwd string `json:"cwd,omitempty"`

	// Env are the environment variables.
	Env map[string]string `json:"env,omitempty"`

	// StopOnEntry halts at the first instruction.
	StopOnEntry bool `json:"stopOnEntry,omitempty"`

	// Port and Host apply to attach requests.
	Port int    `json:"port,omitempty"`
	Host string `json:"host,omitempty"`

	// Folder is the workspace folder path. Empty for global entries.
	Folder string `json:"folder,omitempty"`

	// FolderName is the folder's display name. Empty for global
	// entries.
	FolderName string `json:"folderName,omitempty"`

	// SourceFile is the defining file. Empty for global entries.
	SourceFile string `json:"sourceFile,omitempty"`

	// Compound marks an entry that starts several configurations.
	Compound bool `json:"compound,omitempty"`

	// Members lists the configuration names a compound starts.
	Members []string `json:"members,omitempty"`

	// Detail carries supplemental display text, such as a note about
	// compound members that name missing configurations.
	Detail string `json:"detail,omitempty"`

	// Raw is the entry's original JSON.
	Raw json.RawMessage `json:"-"`
}

// MakeKey builds a launch key from a folder name and a configuration
// name.
func MakeKey(folderName, name string) string {
	return folderName + "|" + name
}

// SplitKey splits a launch key into its folder-name and name parts.
func SplitKey(key string) (folderName, name string) {
	folderName, name, _ = strings.Cut(key, "|")
	return folderName, name
}

// DisplayLabel returns the name prefixed with the folder name when the
// workspace has more than one folder. Compounds are marked.
func (c *Config) DisplayLabel(multiRoot bool) string {
	label := c.Name
	if c.Compound {
		label += " (compound)"
	}
	if multiRoot && c.FolderName != "" {
		return c.FolderName + ": " + label
	}
	return label
}

// parseLaunchDoc extracts configurations and compounds from a launch
// document already stripped to strict JSON. Entries with an empty name
// are dropped and reported in skipped.
func parseLaunchDoc(doc gjson.Result) (configs, compounds []*Config, skipped int) {
	for _, entry := range doc.Get("configurations").Array() {
		c := convertConfig(entry)
		if c.Name == "" {
			skipped++
			continue
		}
		configs = append(configs, c)
	}

	for _, entry := range doc.Get("compounds").Array() {
		name := entry.Get("name").String()
		if name == "" {
			skipped++
			continue
		}
		c := &Config{
			Name:     name,
			Compound: true,
			Raw:      json.RawMessage(entry.Raw),
		}
		for _, m := range entry.Get("configurations").Array() {
			c.Members = append(c.Members, m.String())
		}
		if entry.Get("stopAll").Bool() {
			c.Detail = "stop all"
		}
		compounds = append(compounds, c)
	}

	return configs, compounds, skipped
}

// convertConfig maps one configurations[] entry to a Config.
func convertConfig(entry gjson.Result) *Config {
	c := &Config{
		Name:        entry.Get("name").String(),
		Type:        entry.Get("type").String(),
		Request:     entry.Get("request").String(),
		Program:     entry.Get("program").String(),
		Module:      entry.Get("module").String(),
		Cwd:         entry.Get("cwd").String(),
		StopOnEntry: entry.Get("stopOnEntry").Bool(),
		Port:        int(entry.Get("port").Int()),
		Host:        entry.Get("host").String(),
		Raw:         json.RawMessage(entry.Raw),
	}

	if args := entry.Get("args"); args.IsArray() {
		for _, a := range args.Array() {
			c.Args = append(c.Args, a.String())
		}
	}
	if env := entry.Get("env"); env.IsObject() {
		c.Env = make(map[string]string)
		for key, val := range env.Map() {
			c.Env[key] = val.String()
		}
	}
	return c
}

// convertGlobal maps a settings-level launch entry (a decoded config
// map) to a Config. The map round-trips through JSON so Raw matches
// what a launch file would have carried.
func convertGlobal(m map[string]any, compound bool) (*Config, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode launch entry: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	if compound {
		name := doc.Get("name").String()
		if name == "" {
			return nil, nil
		}
		c := &Config{Name: name, Compound: true, Raw: raw}
		for _, member := range doc.Get("configurations").Array() {
			c.Members = append(c.Members, member.String())
		}
		return c, nil
	}

	c := convertConfig(doc)
	if c.Name == "" {
		return nil, nil
	}
	return c, nil
}

// flagMissingMembers annotates compounds whose members name
// configurations absent from the same scope. The host resolves members
// at launch time, so the entry stays listed.
func flagMissingMembers(compounds []*Config, have map[string]bool) {
	for _, c := range compounds {
		var missing []string
		for _, m := range c.Members {
			if !have[m] {
				missing = append(missing, m)
			}
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		note := "references missing configuration " + strings.Join(missing, ", ")
		if c.Detail != "" {
			c.Detail += "; " + note
		} else {
			c.Detail = note
		}
	}
}
