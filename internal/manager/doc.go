// Package manager wires the dashboard together: one mirror per collection,
// a poller per mirror, the refresh scheduler, the mutation coordinator and the
// event hub. It is structured into small files by concern:
//
//   - manager.go: core Manager type, Run, read accessors and mutations.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - status_report.go: Status reporting for /status and /refresh.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (NewWithConfig, Run, Installed, Running, Status,
// Refresh, Delete, Pull, Create, Subscribe, Ready).
package manager
