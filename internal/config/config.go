// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderScripted = "scripted"
	ProviderGemini   = "gemini"
	ProviderAzure    = "azure"

	SynthesisTemplate = "template"
	SynthesisModel    = "model"

	WeatherStatic = "static"
	WeatherWttr   = "wttr"

	JournalNone     = "none"
	JournalMemory   = "memory"
	JournalMongo    = "mongo"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

type Config struct {
	ModelProvider     string
	Model             string
	HTTPPort          string
	SystemInstruction string
	Synthesis         string
	FetchTimeout      time.Duration

	WeatherSource  string
	WeatherBaseURL string
	DocsDir        string

	Journal         string
	JournalCapacity int
	MongoURI        string
	MongoDB         string
	JournalDSN      string

	AzureEndpoint   string
	AzureAPIKey     string
	AzureAPIVersion string

	LogLevel  slog.Level
	LogFormat string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ModelProvider:     strings.ToLower(getEnv("MODEL_PROVIDER", ProviderScripted)),
		Model:             getEnv("MODEL", "gemini-2.5-flash"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		SystemInstruction: os.Getenv("SYSTEM_INSTRUCTION"),
		Synthesis:         strings.ToLower(getEnv("SYNTHESIS", SynthesisTemplate)),
		WeatherSource:     strings.ToLower(getEnv("WEATHER_SOURCE", WeatherStatic)),
		WeatherBaseURL:    getEnv("WEATHER_BASE_URL", "https://wttr.in"),
		DocsDir:           getEnv("DOCS_DIR", "docs"),
		Journal:           strings.ToLower(getEnv("JOURNAL", JournalNone)),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGODB_DB", "function_calling"),
		JournalDSN:        os.Getenv("JOURNAL_DSN"),
		AzureEndpoint:     os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIKey:       os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureAPIVersion:   getEnv("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	timeout, err := time.ParseDuration(getEnv("FETCH_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("config: FETCH_TIMEOUT: %w", err)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("config: FETCH_TIMEOUT must not be negative, got %s", timeout)
	}
	cfg.FetchTimeout = timeout

	capacity, err := strconv.Atoi(getEnv("JOURNAL_CAPACITY", "1000"))
	if err != nil || capacity <= 0 {
		return nil, fmt.Errorf("config: JOURNAL_CAPACITY must be a positive integer, got %q", os.Getenv("JOURNAL_CAPACITY"))
	}
	cfg.JournalCapacity = capacity

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"MODEL_PROVIDER", c.ModelProvider, []string{ProviderScripted, ProviderGemini, ProviderAzure}},
		{"SYNTHESIS", c.Synthesis, []string{SynthesisTemplate, SynthesisModel}},
		{"WEATHER_SOURCE", c.WeatherSource, []string{WeatherStatic, WeatherWttr}},
		{"JOURNAL", c.Journal, []string{JournalNone, JournalMemory, JournalMongo, JournalSQLite, JournalPostgres}},
		{"LOG_FORMAT", c.LogFormat, []string{"text", "json"}},
	}
	for _, check := range checks {
		if !slices.Contains(check.allowed, check.value) {
			return fmt.Errorf("config: %s must be one of %s, got %q", check.name, strings.Join(check.allowed, "|"), check.value)
		}
	}

	if c.ModelProvider == ProviderAzure && c.AzureEndpoint == "" {
		return errors.New("config: AZURE_OPENAI_ENDPOINT is required for the azure provider")
	}

	switch {
	case c.Journal == JournalPostgres && c.JournalDSN == "":
		return errors.New("config: JOURNAL_DSN is required for the postgres journal")
	case c.Journal == JournalSQLite && c.JournalDSN == "":
		c.JournalDSN = "dispatches.db"
	}

	return nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
