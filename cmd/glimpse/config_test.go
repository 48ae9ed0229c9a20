package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil || cfg.ModelDir != "" {
		t.Fatalf("missing file: %+v, %v", cfg, err)
	}

	path := filepath.Join(dir, "config.yaml")
	body := "model_dir: /models/moondream\nfallback_eos_id: -1\nstream_mode: quiet\nrate_limit: 2.5\nreject_concurrent: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ModelDir != "/models/moondream" || cfg.StreamMode != "quiet" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.FallbackEOSID == nil || *cfg.FallbackEOSID != -1 || cfg.RateLimit == nil || *cfg.RateLimit != 2.5 {
		t.Fatalf("pointer fields not set: %+v", cfg)
	}
	if cfg.RejectConcurrent == nil || !*cfg.RejectConcurrent {
		t.Fatal("reject_concurrent not set")
	}

	if err := os.WriteFile(path, []byte("model_dir: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
