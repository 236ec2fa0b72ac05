package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
// Includes summarizer, speech, storage, and pipeline configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Summarizer Configuration:
// - SUMMARIZER_PROVIDER: "openai" or "gemini" (default: openai)
// - LLM_API_KEY: API key for the OpenAI-compatible provider (optional at
//   startup; without it brief creation is rejected)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.7)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
// - GEMINI_API_KEY: API key for the Gemini backend (optional)
// - GEMINI_MODEL: Gemini model name (default: gemini-2.0-flash)
//
// Speech Configuration:
// - TTS_API_KEY: voice provider API key (optional; absence means briefs
//   complete with placeholder audio)
// - TTS_API_URL: voice provider endpoint (default: ElevenLabs v1)
// - TTS_VOICE_ID: fixed voice; empty picks by detected language
// - TTS_TIMEOUT: request timeout in seconds (default: 60)
//
// Storage and Pipeline Configuration:
// - DATA_DIR: root for database and blobs (default: /app/data)
// - HTTP_ADDR: listen address (default: :8080)
// - WATCH_DIR: drop directory to auto-brief (default: disabled)
// - PDFTOTEXT_BIN: pdftotext binary (default: pdftotext)
// - EXTRACT_TIMEOUT: per-document extraction timeout in seconds (default: 120)
// - SUMMARIZE_TIMEOUT: summarization timeout in seconds (default: 300)
// - SYNTHESIZE_TIMEOUT: synthesis timeout in seconds (default: 300)
// - RETENTION_DAYS: terminal jobs older than this are swept (default: 30)
// - CLEANUP_CRON: sweep schedule (default: "0 3 * * *")

type Config struct {
	// Summarizer Configuration
	LLM LLMConfig `json:"llm"`

	// Gemini backend Configuration
	Gemini GeminiConfig `json:"gemini"`

	// Speech Configuration
	TTS TTSConfig `json:"tts"`

	// Storage Configuration
	Storage StorageConfig `json:"storage"`

	// Pipeline Configuration
	Pipeline PipelineConfig `json:"pipeline"`

	// Retention Configuration
	Retention RetentionConfig `json:"retention"`
}

// LLMConfig holds the configuration for the OpenAI-compatible summarizer
// backend (OpenRouter, OpenAI, and the like).
type LLMConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// GeminiConfig holds the configuration for the Gemini summarizer backend.
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// TTSConfig holds the configuration for the speech synthesis client.
type TTSConfig struct {
	APIKey  string `json:"api_key"`
	APIURL  string `json:"api_url"`
	VoiceID string `json:"voice_id"`
	Timeout int    `json:"timeout"`
}

// StorageConfig holds the data root and HTTP listen address.
type StorageConfig struct {
	DataDir  string `json:"data_dir"`
	HTTPAddr string `json:"http_addr"`
	WatchDir string `json:"watch_dir"`
}

// DBPath is the sqlite database file under the data root.
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "docbrief.db")
}

// PipelineConfig holds per-stage budgets and extractor wiring.
type PipelineConfig struct {
	PDFToTextBin      string `json:"pdftotext_bin"`
	ExtractTimeout    int    `json:"extract_timeout"`
	SummarizeTimeout  int    `json:"summarize_timeout"`
	SynthesizeTimeout int    `json:"synthesize_timeout"`
}

// RetentionConfig holds the sweep schedule and window.
type RetentionConfig struct {
	Days     int    `json:"days"`
	CronExpr string `json:"cron_expr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			Provider:    getEnvString("SUMMARIZER_PROVIDER", "openai"),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnvString("GEMINI_API_KEY", ""),
			Model:  getEnvString("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		TTS: TTSConfig{
			APIKey:  getEnvString("TTS_API_KEY", ""),
			APIURL:  getEnvString("TTS_API_URL", ""),
			VoiceID: getEnvString("TTS_VOICE_ID", ""),
			Timeout: getEnvInt("TTS_TIMEOUT", 60),
		},
		Storage: StorageConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			HTTPAddr: getEnvString("HTTP_ADDR", ":8080"),
			WatchDir: getEnvString("WATCH_DIR", ""),
		},
		Pipeline: PipelineConfig{
			PDFToTextBin:      getEnvString("PDFTOTEXT_BIN", "pdftotext"),
			ExtractTimeout:    getEnvInt("EXTRACT_TIMEOUT", 120),
			SummarizeTimeout:  getEnvInt("SUMMARIZE_TIMEOUT", 300),
			SynthesizeTimeout: getEnvInt("SYNTHESIZE_TIMEOUT", 300),
		},
		Retention: RetentionConfig{
			Days:     getEnvInt("RETENTION_DAYS", 30),
			CronExpr: getEnvString("CLEANUP_CRON", "0 3 * * *"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set. A missing
// summarizer credential is allowed here: briefs are rejected at creation
// time instead, and the credential can arrive later through settings.
func (c *Config) validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown SUMMARIZER_PROVIDER %q", c.LLM.Provider)
	}
	if _, err := cron.ParseStandard(c.Retention.CronExpr); err != nil {
		return fmt.Errorf("invalid CLEANUP_CRON: %w", err)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
