package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "ragdesk.yaml")
	os.WriteFile(yml, []byte(`
qdrant:
  collection: from_yaml
  top_k: 7
ingest:
  retry_backoff: 2s
log_level: debug
`), 0o644)
	dotenv := filepath.Join(dir, ".env")
	os.WriteFile(dotenv, []byte("EMBEDDING_DIM=768\nINDEX_NAME=from_dotenv\n"), 0o644)

	t.Setenv("INDEX_NAME", "from_env")
	t.Setenv("FAIL_ON_PARTIAL_INDEX", "true")
	t.Setenv("PRELOADED_DOCS_USER_ID", "shared")

	cfg, err := Load(yml, dotenv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Qdrant.Collection != "from_env" {
		t.Errorf("env should win, got %q", cfg.Qdrant.Collection)
	}
	if cfg.Qdrant.TopK != 7 || cfg.Ingest.RetryBackoff != 2*time.Second || cfg.LogLevel != "debug" {
		t.Errorf("yaml not applied: %+v", cfg)
	}
	if cfg.Embedding.Dim != 768 {
		t.Errorf("dotenv not applied: dim %d", cfg.Embedding.Dim)
	}
	if !cfg.Ingest.FailOnPartialIndex || cfg.PreloadedTenant != "shared" {
		t.Errorf("env not applied: %+v", cfg.Ingest)
	}
	if cfg.Context.MaxTokens != 8000 || cfg.Ingest.MaxRetries != 3 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingDotenvIsFine(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingYAML(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestBadEnvValues(t *testing.T) {
	env := map[string]string{"TOP_K": "five", "INGEST_RETRY_BACKOFF": "soon", "FAIL_ON_PARTIAL_INDEX": "maybe"}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"TOP_K", "INGEST_RETRY_BACKOFF", "FAIL_ON_PARTIAL_INDEX"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Dim = 0
	cfg.Context.ReservedTokens = 9000
	cfg.Ingest.ChunkOverlap = 1000
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"EMBEDDING_DIM", "RESERVED_TOKENS", "CHUNK_OVERLAP", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %s in %v", want, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("warn"); err != nil || l.String() != "WARN" {
		t.Fatalf("got %v, %v", l, err)
	}
}
