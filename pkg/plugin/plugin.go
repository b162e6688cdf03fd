package plugin

import "context"

// Info contains descriptive metadata for an adapter plugin implementation.
type Info struct {
	ID          string
	Name        string
	Description string
	Author      string
	Version     string
	// Capability names the downstream integration surface the plugin serves,
	// for example "data-query" or "notification".
	Capability string
}

// Result is the uniform response returned by adapter plugins. It mirrors the
// host adapter contract without importing host internals, so plugin binaries
// only depend on this package.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Plugin defines the contract each adapter plugin implementation must satisfy.
type Plugin interface {
	// Info returns the static metadata for the plugin.
	Info() Info
	// Configure allows the plugin to inspect its configuration block prior to use.
	// Implementations may mutate the configuration map to inject defaults.
	Configure(cfg map[string]any) error
	// Invoke executes one action against the downstream system.
	Invoke(ctx context.Context, action string, parameters map[string]any) (Result, error)
}

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}
