package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/ocrbatch/constants"
)

// Progress backends understood by progress.Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Progress ProgressConfig `yaml:"progress"`
	OCR      OCRConfig      `yaml:"ocr"`
	Raster   RasterConfig   `yaml:"raster"`
	Encode   EncodeConfig   `yaml:"encode"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
}

// InputConfig holds the document source folders
type InputConfig struct {
	Dir         string `yaml:"dir"`
	FallbackDir string `yaml:"fallback_dir"`
}

// OutputConfig holds where text artifacts are written
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ProgressConfig selects and configures the checkpoint store
type ProgressConfig struct {
	Backend string `yaml:"backend"` // file | sqlite | postgres
	File    string `yaml:"file"`
	DSN     string `yaml:"dsn"`
}

// OCRConfig holds OCR service configuration
type OCRConfig struct {
	// APIKey is the raw credential input: a single key or a JSON array of keys.
	// It is never read from the settings file.
	APIKey  string        `yaml:"-"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Prompt  string        `yaml:"prompt"`
	Timeout time.Duration `yaml:"timeout"`
}

// RasterConfig holds page rendering configuration
type RasterConfig struct {
	Pdftoppm string `yaml:"pdftoppm"`
	DPI      int    `yaml:"dpi"`
}

// EncodeConfig holds transport payload configuration
type EncodeConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	Quality      int `yaml:"quality"`
}

// RetryConfig holds retry and pacing configuration
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	Backoff      time.Duration `yaml:"backoff"`
	RequestDelay time.Duration `yaml:"request_delay"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Input: InputConfig{
			Dir:         getEnv("OCR_INPUT_DIR", "pdfs"),
			FallbackDir: getEnv("OCR_FALLBACK_DIR", "pdfs_compressed"),
		},
		Output: OutputConfig{
			Dir: getEnv("OCR_OUTPUT_DIR", "ocr_output"),
		},
		Progress: ProgressConfig{
			Backend: getEnv("OCR_PROGRESS_BACKEND", BackendFile),
			File:    getEnv("OCR_PROGRESS_FILE", "ocr_progress.json"),
			DSN:     getEnv("OCR_PROGRESS_DSN", ""),
		},
		OCR: OCRConfig{
			APIKey:  getEnv("GOOGLE_API_KEY", ""),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:   getEnv("GEMINI_MODEL", constants.DefaultModel),
			Prompt:  getEnv("OCR_PROMPT", constants.DefaultPrompt),
			Timeout: getEnvAsDuration("OCR_REQUEST_TIMEOUT", 5*time.Minute),
		},
		Raster: RasterConfig{
			Pdftoppm: getEnv("PDFTOPPM", "pdftoppm"),
			DPI:      getEnvAsInt("OCR_RASTER_DPI", constants.DefaultDPI),
		},
		Encode: EncodeConfig{
			MaxDimension: getEnvAsInt("OCR_MAX_IMAGE_DIM", constants.DefaultMaxImageDim),
			Quality:      getEnvAsInt("OCR_JPEG_QUALITY", constants.DefaultJPEGQuality),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvAsInt("OCR_MAX_RETRIES", 10),
			Backoff:      getEnvAsDuration("OCR_RETRY_DELAY", 10*time.Second),
			RequestDelay: getEnvAsDuration("OCR_REQUEST_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// ApplySettingsFile overlays the YAML settings file at path onto c.
// Keys missing from the file keep their current values. A missing file is
// not an error unless required is set.
func (c *Config) ApplySettingsFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse settings file %s", path), err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("input.dir", c.Input.Dir, Required).
		Field("output.dir", c.Output.Dir, Required).
		Field("progress.backend", c.Progress.Backend, OneOf(BackendFile, BackendSQLite, BackendPostgres)).
		Field("raster.dpi", c.Raster.DPI, Positive).
		Field("encode.max_dimension", c.Encode.MaxDimension, Positive).
		Field("encode.quality", c.Encode.Quality, IntRange(1, 100)).
		Field("retry.max_retries", c.Retry.MaxRetries, NonNegative).
		Field("retry.backoff", c.Retry.Backoff, NonNegative).
		Field("retry.request_delay", c.Retry.RequestDelay, NonNegative)

	switch strings.ToLower(c.Progress.Backend) {
	case BackendFile:
		v.Field("progress.file", c.Progress.File, Required)
	case BackendPostgres:
		v.Field("progress.dsn", c.Progress.DSN, Required)
	}
	return ValidateAndReturnError(v)
}

// ValidateForRun additionally checks what an OCR run needs beyond Validate.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := NewValidator().
		Field("ocr.api_key", c.OCR.APIKey, Required).
		Field("ocr.model", c.OCR.Model, Required).
		Field("ocr.base_url", c.OCR.BaseURL, Required).
		Field("ocr.timeout", c.OCR.Timeout, Positive)
	return ValidateAndReturnError(v)
}
