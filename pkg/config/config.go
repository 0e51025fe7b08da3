// Package config loads service settings. Sources are applied in order:
// built-in defaults, an optional YAML file, a .env file, then the process
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Port        string `yaml:"port"`
	CORSOrigin  string `yaml:"cors_origin"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type Qdrant struct {
	Addr        string        `yaml:"addr"`
	Collection  string        `yaml:"collection"`
	TopK        int           `yaml:"top_k"`
	UpsertBatch int           `yaml:"upsert_batch"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Token     string `yaml:"token"`
	Dim       int    `yaml:"dim"`
	BatchSize int    `yaml:"batch_size"`
}

type LLM struct {
	Provider  string  `yaml:"provider"`
	APIKey    string  `yaml:"api_key"`
	Model     string  `yaml:"model"`
	BaseURL   string  `yaml:"base_url"`
	MaxTokens int     `yaml:"max_tokens"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	Converse  bool    `yaml:"converse"`
}

type Context struct {
	MaxTokens      int    `yaml:"max_tokens"`
	ReservedTokens int    `yaml:"reserved_tokens"`
	Encoding       string `yaml:"encoding"`
}

type Ingest struct {
	ChunkSize          int           `yaml:"chunk_size"`
	ChunkOverlap       int           `yaml:"chunk_overlap"`
	Workers            int           `yaml:"workers"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	FailOnPartialIndex bool          `yaml:"fail_on_partial_index"`
	PDFLicenseKey      string        `yaml:"pdf_license_key"`
}

type Tasks struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// Config is the full settings tree shared by every binary.
type Config struct {
	HTTP            HTTP      `yaml:"http"`
	NATSURL         string    `yaml:"nats_url"`
	Qdrant          Qdrant    `yaml:"qdrant"`
	Embedding       Embedding `yaml:"embedding"`
	LLM             LLM       `yaml:"llm"`
	Context         Context   `yaml:"context"`
	Ingest          Ingest    `yaml:"ingest"`
	Tasks           Tasks     `yaml:"tasks"`
	PreloadedTenant string    `yaml:"preloaded_tenant"`
	MetricsAddr     string    `yaml:"metrics_addr"`
	LogLevel        string    `yaml:"log_level"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Port:        "8080",
			CORSOrigin:  "*",
			UploadDir:   os.TempDir(),
			MaxUploadMB: 50,
		},
		NATSURL: "nats://localhost:4222",
		Qdrant: Qdrant{
			Addr:        "localhost:6334",
			Collection:  "rag_documents",
			TopK:        5,
			UpsertBatch: 256,
			Timeout:     30 * time.Second,
		},
		Embedding: Embedding{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "all-minilm",
			Dim:       384,
			BatchSize: 100,
		},
		LLM: LLM{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			MaxTokens: 8192,
			RateLimit: 5,
			Burst:     5,
		},
		Context: Context{
			MaxTokens:      8000,
			ReservedTokens: 500,
			Encoding:       "cl100k_base",
		},
		Ingest: Ingest{
			ChunkSize:    1000,
			ChunkOverlap: 150,
			Workers:      8,
			MaxRetries:   3,
			RetryBackoff: 5 * time.Second,
		},
		Tasks: Tasks{
			Dir: "data/tasks",
			TTL: 7 * 24 * time.Hour,
		},
		PreloadedTenant: "_preloaded_",
		MetricsAddr:     ":9091",
		LogLevel:        "info",
	}
}

// Load builds a Config. path may be empty; dotenv names a .env file that
// is read when present. Variables already set in the environment win over
// the .env file.
func Load(path, dotenv string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config: load %s: %w", dotenv, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := env{lookup: lookup}
	e.str("PORT", &c.HTTP.Port)
	e.str("CORS_ORIGIN", &c.HTTP.CORSOrigin)
	e.str("UPLOAD_DIR", &c.HTTP.UploadDir)
	e.num64("MAX_UPLOAD_MB", &c.HTTP.MaxUploadMB)
	e.str("NATS_URL", &c.NATSURL)

	e.str("QDRANT_ADDR", &c.Qdrant.Addr)
	e.str("INDEX_NAME", &c.Qdrant.Collection)
	e.num("TOP_K", &c.Qdrant.TopK)
	e.num("UPSERT_BATCH", &c.Qdrant.UpsertBatch)
	e.dur("QDRANT_TIMEOUT", &c.Qdrant.Timeout)

	e.str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.str("EMBEDDING_URL", &c.Embedding.BaseURL)
	e.str("EMBEDDING_MODEL_NAME", &c.Embedding.Model)
	e.str("EMBEDDING_TOKEN", &c.Embedding.Token)
	e.num("EMBEDDING_DIM", &c.Embedding.Dim)
	e.num("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)

	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("GEMINI_API_KEY", &c.LLM.APIKey)
	e.str("LLM_API_KEY", &c.LLM.APIKey)
	e.str("GEMINI_MODEL_NAME", &c.LLM.Model)
	e.str("LLM_BASE_URL", &c.LLM.BaseURL)
	e.num("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	e.float("LLM_RATE_LIMIT", &c.LLM.RateLimit)
	e.num("LLM_BURST", &c.LLM.Burst)
	e.flag("CHIT_CHAT_CONVERSE", &c.LLM.Converse)

	e.num("MAX_CONTEXT_TOKENS", &c.Context.MaxTokens)
	e.num("RESERVED_TOKENS", &c.Context.ReservedTokens)
	e.str("TOKEN_ENCODING", &c.Context.Encoding)

	e.num("CHUNK_SIZE", &c.Ingest.ChunkSize)
	e.num("CHUNK_OVERLAP", &c.Ingest.ChunkOverlap)
	e.num("INGEST_WORKERS", &c.Ingest.Workers)
	e.num("INGEST_MAX_RETRIES", &c.Ingest.MaxRetries)
	e.dur("INGEST_RETRY_BACKOFF", &c.Ingest.RetryBackoff)
	e.flag("FAIL_ON_PARTIAL_INDEX", &c.Ingest.FailOnPartialIndex)
	e.str("UNIDOC_LICENSE_API_KEY", &c.Ingest.PDFLicenseKey)

	e.str("TASK_DB_DIR", &c.Tasks.Dir)
	e.dur("TASK_TTL", &c.Tasks.TTL)

	e.str("PRELOADED_DOCS_USER_ID", &c.PreloadedTenant)
	e.str("METRICS_ADDR", &c.MetricsAddr)
	e.str("LOG_LEVEL", &c.LogLevel)
	return errors.Join(e.errs...)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}
	check(c.Embedding.Dim > 0, "EMBEDDING_DIM must be positive, got %d", c.Embedding.Dim)
	check(c.Qdrant.TopK > 0, "TOP_K must be positive, got %d", c.Qdrant.TopK)
	check(c.Context.MaxTokens > c.Context.ReservedTokens && c.Context.ReservedTokens >= 0,
		"MAX_CONTEXT_TOKENS (%d) must exceed RESERVED_TOKENS (%d)", c.Context.MaxTokens, c.Context.ReservedTokens)
	check(c.Ingest.ChunkSize > 0, "CHUNK_SIZE must be positive, got %d", c.Ingest.ChunkSize)
	check(c.Ingest.ChunkOverlap >= 0 && c.Ingest.ChunkOverlap < c.Ingest.ChunkSize,
		"CHUNK_OVERLAP (%d) must be in [0, CHUNK_SIZE)", c.Ingest.ChunkOverlap)
	check(c.Ingest.MaxRetries >= 0, "INGEST_MAX_RETRIES must not be negative")
	check(strings.TrimSpace(c.PreloadedTenant) != "", "PRELOADED_DOCS_USER_ID must be set")
	check(c.Qdrant.Collection != "", "INDEX_NAME must be set")
	_, err := ParseLevel(c.LogLevel)
	check(err == nil, "%v", err)
	return errors.Join(errs...)
}

// env applies string environment values onto typed fields, collecting
// parse errors.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) num(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *env) num64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *env) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *env) flag(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *env) dur(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = d
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}

// NewLogger returns a JSON logger on stdout at the configured level and
// makes it the default.
func (c Config) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
