package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/blood-report-parser/internal/ocr"
	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	OCR      OCRConfig    `yaml:"ocr"`
	Upload   UploadConfig `yaml:"upload"`
	Watch    WatchConfig  `yaml:"watch"`
	LogLevel string       `yaml:"log_level"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects where report histories live.
type StoreConfig struct {
	Backend          string        `yaml:"backend"` // file | sqlite | postgres | memory
	Path             string        `yaml:"path"`
	DSN              string        `yaml:"dsn"`
	Slot             string        `yaml:"slot"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

type OCRConfig struct {
	Engine        string        `yaml:"engine"`
	TesseractBin  string        `yaml:"tesseract_bin"`
	Lang          string        `yaml:"lang"`
	TessdataDir   string        `yaml:"tessdata_dir"`
	PSM           int           `yaml:"psm"`
	OEM           int           `yaml:"oem"`
	Timeout       time.Duration `yaml:"timeout"`
	HeicConverter string        `yaml:"heic_converter"`
	TSVConfidence bool          `yaml:"tsv_confidence"`
}

type UploadConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	TempDir  string `yaml:"temp_dir"`
}

// WatchConfig enables the inbox watcher when Dir is set.
type WatchConfig struct {
	Dir       string        `yaml:"dir"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Debounce  time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend:         repository.BackendFile,
			Path:            "./data",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		OCR: OCRConfig{
			Engine:        ocr.EngineTesseract,
			TesseractBin:  "tesseract",
			Lang:          "eng",
			Timeout:       2 * time.Minute,
			HeicConverter: "magick",
		},
		Upload: UploadConfig{
			MaxBytes: 20 << 20,
		},
		Watch: WatchConfig{
			Workers:   2,
			QueueSize: 64,
			Debounce:  500 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// LoadConfig applies CONFIG_FILE (YAML) over the defaults, then environment
// variables over both.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)
	c.Store.DSN = getEnv("DB_URL", c.Store.DSN)
	c.Store.Slot = getEnv("STORE_SLOT", c.Store.Slot)
	c.Store.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Store.MaxConns)
	c.Store.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Store.MinConns)
	c.Store.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Store.MaxConnLifetime)
	c.Store.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Store.MaxConnIdleTime)
	c.Store.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Store.DialTimeout)
	c.Store.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Store.StatementTimeout)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.TesseractBin = getEnv("TESSERACT_BIN", c.OCR.TesseractBin)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.PSM = getEnvAsInt("OCR_PSM", c.OCR.PSM)
	c.OCR.OEM = getEnvAsInt("OCR_OEM", c.OCR.OEM)
	c.OCR.Timeout = getEnvAsDuration("OCR_TIMEOUT", c.OCR.Timeout)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)
	c.OCR.TSVConfidence = getEnvAsBool("OCR_TSV_CONFIDENCE", c.OCR.TSVConfidence)

	c.Upload.MaxBytes = getEnvAsInt64("UPLOAD_MAX_BYTES", c.Upload.MaxBytes)
	c.Upload.TempDir = getEnv("UPLOAD_TEMP_DIR", c.Upload.TempDir)

	c.Watch.Dir = getEnv("WATCH_DIR", c.Watch.Dir)
	c.Watch.Workers = getEnvAsInt("WATCH_WORKERS", c.Watch.Workers)
	c.Watch.QueueSize = getEnvAsInt("WATCH_QUEUE_SIZE", c.Watch.QueueSize)
	c.Watch.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Watch.Debounce)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("store.backend", c.Store.Backend, Required, OneOf(
		repository.BackendFile, repository.BackendSQLite, repository.BackendPostgres, repository.BackendMemory))
	switch c.Store.Backend {
	case repository.BackendPostgres:
		v.Field("DB_URL", c.Store.DSN, Required)
	case repository.BackendFile, repository.BackendSQLite:
		v.Field("store.path", c.Store.Path, Required)
	}
	v.Field("ocr.engine", c.OCR.Engine, OneOf(ocr.EngineTesseract, ocr.EngineGosseract))
	v.Field("ocr.lang", c.OCR.Lang, Required)
	v.Field("ocr.heic_converter", c.OCR.HeicConverter, OneOf("", "heif-convert", "magick", "sips"))
	v.Field("ocr.psm", c.OCR.PSM, NonNegative)
	v.Field("ocr.oem", c.OCR.OEM, NonNegative)
	v.Field("upload.max_bytes", c.Upload.MaxBytes, Positive)
	// Same spellings ParseLevel accepts.
	v.Field("log_level", strings.ToLower(strings.TrimSpace(c.LogLevel)),
		OneOf("debug", "info", "warn", "warning", "error"))
	if c.Watch.Dir != "" {
		v.Field("watch.workers", c.Watch.Workers, Positive)
		v.Field("watch.queue_size", c.Watch.QueueSize, Positive)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// Repository maps the store section onto the repository package.
func (c StoreConfig) Repository() repository.Config {
	return repository.Config{
		Backend:          c.Backend,
		Path:             c.Path,
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// EngineConfig maps the ocr section onto the ocr package.
func (c OCRConfig) EngineConfig() ocr.Config {
	return ocr.Config{
		Engine:              c.Engine,
		Tesseract:           c.TesseractBin,
		Lang:                c.Lang,
		TessdataDir:         c.TessdataDir,
		PSM:                 c.PSM,
		OEM:                 c.OEM,
		HeicConverter:       c.HeicConverter,
		EnableTSVConfidence: c.TSVConfidence,
		Timeout:             c.Timeout,
	}
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
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
