// Package manager coordinates the daemon's single inference engine. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, ModelInfo, Snapshot, Completion).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound).
//   - queue_admission.go: bounded queueing in front of the engine.
//   - ensure.go: EnsureModel, which loads, reloads or recovers the engine.
//   - chat.go: Generate, Chat (NDJSON streaming) and request mapping.
//   - ops.go: explicit Load, Unload and Cancel.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - sanity.go: dependency checks for /readyz and the CLI.
//
// The engine serializes its own operations; the manager adds admission
// control so that callers queue with a deadline instead of blocking on the
// engine mutex, and keeps cached state so that Status never waits for an
// inference to finish.
package manager
