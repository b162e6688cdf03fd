// Package api exposes the REST interface for routing dispatch queries,
// running pipelines, submitting async jobs, and browsing execution history.
// It also serves the metrics endpoint and a liveness probe.
package api
