package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raiderbot.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":9090\"\n"), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("address = %s", cfg.Server.Address)
	}
	if cfg.Storage.Knowledge.Driver != "memory" {
		t.Fatalf("knowledge driver = %s", cfg.Storage.Knowledge.Driver)
	}
	if cfg.Queue.Driver != "memory" {
		t.Fatalf("queue driver = %s", cfg.Queue.Driver)
	}
	if cfg.Auth.Mode != "disabled" {
		t.Fatalf("auth mode = %s", cfg.Auth.Mode)
	}
	if cfg.Pipeline.StepTimeoutSeconds != 30 {
		t.Fatalf("step timeout = %d", cfg.Pipeline.StepTimeoutSeconds)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir = %s", cfg.Runtime.DataDir)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	const raw = `
server:
  address: ":8080"
  metrics_address: ":9100"
storage:
  knowledge:
    driver: mysql
    dsn: "user:pass@tcp(localhost:3306)/raiderbot"
  jobs:
    driver: mysql
    dsn: "user:pass@tcp(localhost:3306)/raiderbot"
queue:
  driver: redis
  redis:
    address: "localhost:6379"
    queue: "raiderbot:jobs"
auth:
  mode: apikey
  keys:
    - key: secret
      name: dispatch
adapters:
  webhook:
    enabled: true
    url: "https://hooks.example.com/x"
runtime:
  workers: 4
`
	dir := t.TempDir()
	path := filepath.Join(dir, "raiderbot.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Storage.Knowledge.Driver != "mysql" {
		t.Fatalf("knowledge driver = %s", cfg.Storage.Knowledge.Driver)
	}
	if cfg.Queue.Driver != "redis" || cfg.Queue.Redis.Address != "localhost:6379" {
		t.Fatalf("queue config = %+v", cfg.Queue)
	}
	if cfg.Auth.Mode != "apikey" || len(cfg.Auth.Keys) != 1 {
		t.Fatalf("auth config = %+v", cfg.Auth)
	}
	if !cfg.Adapters.Webhook.Enabled {
		t.Fatal("webhook adapter should be enabled")
	}
	if cfg.Runtime.Workers != 4 {
		t.Fatalf("workers = %d", cfg.Runtime.Workers)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
