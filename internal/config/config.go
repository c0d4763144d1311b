package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"` // bytes
	KeepArtifacts bool   `mapstructure:"keep_artifacts"`  // page images, raw OCR text
}

// OCRConfig holds Tesseract configuration
type OCRConfig struct {
	Languages   []string      `mapstructure:"languages"`
	TessdataDir string        `mapstructure:"tessdata_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxPages    int           `mapstructure:"max_pages"`
	DPI         int           `mapstructure:"dpi"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig controls the heuristic/LLM split of the pipeline.
type ExtractionConfig struct {
	HeuristicsEnabled   bool    `mapstructure:"heuristics_enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"` // below this, fall back to LLM
	DefaultCurrency     string  `mapstructure:"default_currency"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// LarkConfig holds optional Lark notification configuration. Notifications
// are disabled when app_id is empty.
type LarkConfig struct {
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	ChatID        string        `mapstructure:"chat_id"`
	NotifySuccess bool          `mapstructure:"notify_success"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/receiptd.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Storage defaults
	viper.SetDefault("storage.base_dir", "data/receipts")
	viper.SetDefault("storage.max_upload_size", int64(20<<20)) // 20 MiB
	viper.SetDefault("storage.keep_artifacts", true)

	// OCR defaults
	viper.SetDefault("ocr.languages", []string{"eng"})
	viper.SetDefault("ocr.timeout", 60*time.Second)
	viper.SetDefault("ocr.max_pages", 2)
	viper.SetDefault("ocr.dpi", 300)

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.temperature", 0.1)
	viper.SetDefault("openai.max_tokens", 2048)
	viper.SetDefault("openai.timeout", 60*time.Second)

	// Extraction defaults
	viper.SetDefault("extraction.heuristics_enabled", true)
	viper.SetDefault("extraction.confidence_threshold", 0.6)
	viper.SetDefault("extraction.default_currency", "USD")

	// Worker defaults
	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.batch_size", 5)
	viper.SetDefault("worker.job_timeout", 2*time.Minute)
	viper.SetDefault("worker.max_attempts", 3)
	viper.SetDefault("worker.retry_backoff", 30*time.Second)

	// Lark defaults
	viper.SetDefault("lark.notify_success", false)
	viper.SetDefault("lark.api_timeout", 30*time.Second)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("lark.chat_id", "LARK_CHAT_ID")
	viper.BindEnv("ocr.tessdata_dir", "TESSDATA_PREFIX")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	// The LLM fallback needs a key unless heuristics alone are in use.
	if c.OpenAI.APIKey == "" && !c.Extraction.HeuristicsEnabled {
		return fmt.Errorf("openai.api_key is required when heuristics are disabled")
	}

	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.confidence_threshold must be between 0 and 1")
	}

	if c.OCR.MaxPages <= 0 {
		return fmt.Errorf("ocr.max_pages must be positive")
	}

	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}

	// Lark is optional, but partial credentials are a misconfiguration.
	if c.Lark.AppID != "" && (c.Lark.AppSecret == "" || c.Lark.ChatID == "") {
		return fmt.Errorf("lark.app_secret and lark.chat_id are required when lark.app_id is set")
	}

	return nil
}
