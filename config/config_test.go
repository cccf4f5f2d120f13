package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		"listen_addr": ":9000",
		"self_url": "http://shard-1:9000",
		"manager_url": "http://manager:8000",
		"underlying_token": "http://token:7000",
		"owner": "0x000000000000000000000000000000000000000d",
		"fee": "1",
		"snapshot_path": "/var/lib/enoki/state.json",
		"network": {"delay_enabled": true, "min_delay_ms": 10, "max_delay_ms": 50}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SelfURL != "http://shard-1:9000" || cfg.ManagerURL != "http://manager:8000" {
		t.Errorf("urls = %q / %q", cfg.SelfURL, cfg.ManagerURL)
	}
	if cfg.Fee != "1" {
		t.Errorf("fee = %q, want 1", cfg.Fee)
	}
	if !cfg.Network.DelayEnabled || cfg.Network.MinDelayMs != 10 || cfg.Network.MaxDelayMs != 50 {
		t.Errorf("network = %+v", cfg.Network)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("loading a missing file succeeded")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("loading malformed JSON succeeded")
	}
}
