// Package pipeline executes ordered plans against registered capability
// adapters. Step failures are contained rather than propagated, so a single
// unavailable downstream system never aborts the remaining steps of a run.
package pipeline
