// Package daemon coordinates the long-running producer process.
//
// It wires configuration, the job queue, the intake watcher, the retention
// sweeper and the HTTP API into a single lifecycle with flock-based locking
// to prevent two producers from sharing a state directory. Services run under
// an errgroup: the first failure cancels the rest, and shutdown gives the API
// a short drain window for in-flight transfers.
//
// Keep orchestration logic here: file handling and queue semantics live in
// their respective packages while the daemon focuses on startup, shutdown and
// HTTP routing.
package daemon
