// Package orchestrator wires the decision engine, capability resolver,
// execution planner, and pipeline executor into a single dispatch service. It
// is the only package that drives a query end to end, from intent
// classification through plan execution to the persisted run record.
package orchestrator
