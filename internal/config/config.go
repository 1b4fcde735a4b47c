// Package config reads the process environment (spec.md §6), optionally
// seeded from a local .env file, into a typed Config value. Configuration
// loading beyond environment variables and secret management are explicit
// Non-goals (spec.md §1) — this package never reads YAML/JSON config
// files or a secrets backend.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// OCRBackend is one of the two backends stage handlers may target.
type OCRBackend string

const (
	BackendTesseract OCRBackend = "tesseract"
	BackendVision     OCRBackend = "vision"
)

// WorkerCounts holds the per-queue worker process counts used by
// install-workers/uninstall-workers (spec.md §4.5).
type WorkerCounts struct {
	Fetch       int
	OCR         int
	Compilation int
	Extraction  int
	Deploy      int
}

// Config is the resolved set of environment-driven settings every
// component in this module is parameterized by.
type Config struct {
	StorageDir        string
	DatabaseURL       string
	RedisURL          string
	DefaultOCRBackend OCRBackend
	EnableExtraction  bool
	Workers           WorkerCounts
	LokiURL           string
	NumWorkers        int
	SpacyNProcess     int
}

// Load reads a .env file if present (ignoring its absence) and then the
// process environment, applying the defaults spec.md §6 implies.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageDir:        getenv("STORAGE_DIR", "../sites"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		DefaultOCRBackend: OCRBackend(getenv("DEFAULT_OCR_BACKEND", string(BackendTesseract))),
		LokiURL:           os.Getenv("LOKI_URL"),
	}

	var err error
	if cfg.EnableExtraction, err = getbool("ENABLE_EXTRACTION", false); err != nil {
		return Config{}, err
	}
	if cfg.Workers.Fetch, err = getint("FETCH_WORKERS", 1); err != nil {
		return Config{}, err
	}
	if cfg.Workers.OCR, err = getint("OCR_WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.Workers.Compilation, err = getint("COMPILATION_WORKERS", 1); err != nil {
		return Config{}, err
	}
	if cfg.Workers.Extraction, err = getint("EXTRACTION_WORKERS", 1); err != nil {
		return Config{}, err
	}
	if cfg.Workers.Deploy, err = getint("DEPLOY_WORKERS", 1); err != nil {
		return Config{}, err
	}
	if cfg.NumWorkers, err = getint("NUM_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if cfg.SpacyNProcess, err = getint("SPACY_N_PROCESS", 1); err != nil {
		return Config{}, err
	}

	if cfg.DefaultOCRBackend != BackendTesseract && cfg.DefaultOCRBackend != BackendVision {
		return Config{}, fmt.Errorf("config: DEFAULT_OCR_BACKEND must be %q or %q, got %q",
			BackendTesseract, BackendVision, cfg.DefaultOCRBackend)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true, nil
	case "0", "false", "FALSE", "False":
		return false, nil
	default:
		return false, fmt.Errorf("config: %s must be 0/1 or true/false, got %q", key, v)
	}
}

func getint(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}
