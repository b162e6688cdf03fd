// Package job provides asynchronous task intake on top of the orchestrator.
// Submitted jobs are persisted, published to a queue backend, and processed by
// a worker pool with bounded retries for transient failures.
package job
