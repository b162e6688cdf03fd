package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakePlugin struct {
	info       Info
	configured map[string]any
	configErr  error
}

func (f *fakePlugin) Info() Info { return f.info }

func (f *fakePlugin) Configure(cfg map[string]any) error {
	f.configured = cfg
	return f.configErr
}

func (f *fakePlugin) Invoke(_ context.Context, action string, _ map[string]any) (Result, error) {
	return Result{Success: true, Output: map[string]any{"action": action}}, nil
}

type fakeLoader struct {
	plugins map[string]Plugin
}

func (f *fakeLoader) Load(path string) (Plugin, error) {
	p, ok := f.plugins[path]
	if !ok {
		return nil, errors.New("unknown plugin path")
	}
	return p, nil
}

func TestManagerLoadsConfiguredPlugins(t *testing.T) {
	loader := &fakeLoader{plugins: map[string]Plugin{
		filepath.Join("plugins", "echo.so"): &fakePlugin{info: Info{ID: "echo", Capability: "data-query"}},
	}}
	cfg := ManagerConfig{
		PluginDir: "plugins",
		Plugins: map[string]PluginConfig{
			"echo":     {Enabled: true, Path: "echo.so", Config: map[string]any{"prefix": "rb"}},
			"disabled": {Enabled: false},
		},
	}

	m, err := NewManager(cfg, WithLoader(loader))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	p, err := m.Get("echo")
	if err != nil {
		t.Fatalf("get plugin: %v", err)
	}
	fake := p.(*fakePlugin)
	if fake.configured["prefix"] != "rb" {
		t.Fatalf("configuration was not passed: %+v", fake.configured)
	}
	if _, err := m.Get("disabled"); err == nil {
		t.Fatal("disabled plugin should not be registered")
	}
}

func TestManagerRejectsMissingCapability(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	err = m.Register("bad", &fakePlugin{info: Info{ID: "bad"}}, nil)
	if err == nil {
		t.Fatal("expected capability error")
	}
}

func TestManagerRejectsDuplicateAndMismatchedIDs(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	p := &fakePlugin{info: Info{ID: "echo", Capability: "notification"}}
	if err := m.Register("echo", p, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register("echo", p, nil); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := m.Register("other", p, nil); err == nil {
		t.Fatal("expected id mismatch error")
	}
}

func TestLoadManagerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	raw := []byte("pluginDir: /opt/raiderbot/plugins\nplugins:\n  echo:\n    enabled: true\n    path: echo.so\n")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadManagerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PluginDir != "/opt/raiderbot/plugins" {
		t.Fatalf("unexpected plugin dir: %s", cfg.PluginDir)
	}
	if !cfg.Plugins["echo"].Enabled {
		t.Fatal("echo plugin should be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.Plugins["broken"] = PluginConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing path")
	}
}

func TestAllReturnsSortedPlugins(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, id := range []string{"zeta", "alpha"} {
		if err := m.Register(id, &fakePlugin{info: Info{Capability: "sync"}}, nil); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	plugins := m.All()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
}
