// Package launch mirrors the debug launch configurations defined in
// the workspace.
//
// Configurations come from per-folder launch files (.runbar/launch.json
// first, then .vscode/launch.json, both JSONC) and optionally from the
// launch table of the user configuration. Global entries carry an
// empty folder and list after all folder entries.
//
// A configuration's key is "<folder-name>|<name>"; global entries use
// "|<name>". Within a folder, compounds list after plain
// configurations.
//
// Every entry keeps its original JSON so dispatch can hand the host
// the full object, including fields runbar does not model.
package launch
