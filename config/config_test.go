package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/weiihann/offloadbench/task"
)

const exampleYaml = `peer: 10.0.0.7
port: 6000
ftp_port: 2121
connect_timeout: 2s
test: smith-waterman
iterations: 10
policy: abort
ocr:
  env:
    - TESSDATA_PREFIX=/opt/tessdata
alignment:
  files:
    query: bigQuery.txt
  m: 3
`

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(exampleYaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Peer != "10.0.0.7" || cfg.Port != 6000 || cfg.FTPPort != 2121 {
		t.Errorf("connection fields = %+v", cfg)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("connect timeout = %v, want 2s", cfg.ConnectTimeout)
	}
	if cfg.Iterations != 10 || cfg.Policy != "abort" {
		t.Errorf("iterations = %d policy = %q", cfg.Iterations, cfg.Policy)
	}

	if cfg.Alignment.Files.Query != "bigQuery.txt" {
		t.Errorf("query = %q, want bigQuery.txt", cfg.Alignment.Files.Query)
	}
	if cfg.Alignment.Files.Database != "database.txt" {
		t.Errorf("database = %q, want default", cfg.Alignment.Files.Database)
	}
	if cfg.Alignment.M != 3 || cfg.Alignment.K != 1 {
		t.Errorf("m,k = %d,%d, want 3,1", cfg.Alignment.M, cfg.Alignment.K)
	}
	if len(cfg.OCR.Env) != 1 || cfg.OCR.Env[0] != "TESSDATA_PREFIX=/opt/tessdata" {
		t.Errorf("ocr env = %q", cfg.OCR.Env)
	}
	if cfg.OCR.Image != task.DefaultImage {
		t.Errorf("image = %q, want default", cfg.OCR.Image)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("iterations: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of a file without a peer failed: %v", err)
	}
	if cfg.Iterations != 5 {
		t.Errorf("iterations = %d, want 5", cfg.Iterations)
	}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject the missing peer")
	}

	cfg.Peer = "10.0.0.1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate after setting the peer: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.Iterations != DefaultIterations {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	if err := Parse([]byte("peers: [1, 2]\n"), &cfg); err == nil {
		t.Error("expected error for unknown key")
	}

	if err := Parse(nil, &cfg); err != nil {
		t.Errorf("empty document err = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.Iterations = 0
	cfg.Test = "3"
	cfg.Policy = "retry"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, want := range []string{"peer address", "port 0", "unknown test", "unknown repetition policy"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, task.ErrNoIterations) {
		t.Error("expected ErrNoIterations in joined error")
	}
}
