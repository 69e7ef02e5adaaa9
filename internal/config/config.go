package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "RAG_RESEARCH_CONFIG"
	databasePathEnv   = "RAG_RESEARCH_DB"
	dataDirEnv        = "RAG_RESEARCH_DATA_DIR"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	cohereAPIKeyEnv   = "COHERE_API_KEY"
	embeddingModelEnv = "EMBEDDING_MODEL"
	summaryModelEnv   = "SUMMARY_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv   = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Data       DataConfig       `yaml:"data"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Summaries  SummariesConfig  `yaml:"summaries"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Telegram   TelegramConfig   `yaml:"telegram"`
}

// TelegramConfig enables run reports to a Telegram chat when both
// fields are set.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether run notifications are configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DataConfig describes local artifact storage (downloaded PDFs).
type DataConfig struct {
	PDFDir string `yaml:"pdfDir"`
}

// FetchConfig selects the feed source and its default query window.
type FetchConfig struct {
	Source    string   `yaml:"source"`
	Topic     string   `yaml:"topic"`
	DaysBack  int      `yaml:"daysBack"`
	MaxPapers int      `yaml:"maxPapers"`
	FeedURLs  []string `yaml:"feedUrls"`
}

// ChunkingConfig controls how extracted text is split for embedding.
type ChunkingConfig struct {
	Size            int     `yaml:"size"`
	OverlapFraction float64 `yaml:"overlapFraction"`
}

// EmbeddingsConfig defines the embedding provider and its pricing.
type EmbeddingsConfig struct {
	Provider         string  `yaml:"provider"`
	Model            string  `yaml:"model"`
	APIKey           string  `yaml:"apiKey"`
	Endpoint         string  `yaml:"endpoint"`
	BatchSize        int     `yaml:"batchSize"`
	PricePer1KTokens float64 `yaml:"pricePer1kTokens"`
}

// SummariesConfig defines the generation API used for paper summaries.
type SummariesConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Model            string  `yaml:"model"`
	APIKey           string  `yaml:"apiKey"`
	Endpoint         string  `yaml:"endpoint"`
	MaxTokens        int     `yaml:"maxTokens"`
	ContextBudget    int     `yaml:"contextBudget"`
	PricePer1KTokens float64 `yaml:"pricePer1kTokens"`
	BatchLimit       int     `yaml:"batchLimit"`
}

// PipelineConfig bounds per-stage concurrency and external call timeouts.
type PipelineConfig struct {
	Workers        int `yaml:"workers"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-call timeout.
func (p PipelineConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     bool           `yaml:"runOnStart"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Data.PDFDir = v
	}
	if v := os.Getenv(cohereAPIKeyEnv); v != "" && c.Embeddings.Provider == "cohere" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		if c.Embeddings.APIKey == "" {
			c.Embeddings.APIKey = v
		}
		if c.Summaries.APIKey == "" {
			c.Summaries.APIKey = v
		}
	}
	if v := os.Getenv(embeddingModelEnv); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv(summaryModelEnv); v != "" {
		c.Summaries.Model = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.Data.PDFDir != "" {
		base.Data = override.Data
	}

	if override.Fetch.Source != "" {
		base.Fetch.Source = override.Fetch.Source
	}
	if override.Fetch.Topic != "" {
		base.Fetch.Topic = override.Fetch.Topic
	}
	if override.Fetch.DaysBack > 0 {
		base.Fetch.DaysBack = override.Fetch.DaysBack
	}
	if override.Fetch.MaxPapers > 0 {
		base.Fetch.MaxPapers = override.Fetch.MaxPapers
	}
	if len(override.Fetch.FeedURLs) > 0 {
		base.Fetch.FeedURLs = override.Fetch.FeedURLs
	}

	if override.Chunking.Size > 0 {
		base.Chunking.Size = override.Chunking.Size
	}
	if override.Chunking.OverlapFraction > 0 {
		base.Chunking.OverlapFraction = override.Chunking.OverlapFraction
	}

	if override.Embeddings.Provider != "" {
		base.Embeddings.Provider = override.Embeddings.Provider
	}
	if override.Embeddings.Model != "" {
		base.Embeddings.Model = override.Embeddings.Model
	}
	if override.Embeddings.APIKey != "" {
		base.Embeddings.APIKey = override.Embeddings.APIKey
	}
	if override.Embeddings.Endpoint != "" {
		base.Embeddings.Endpoint = override.Embeddings.Endpoint
	}
	if override.Embeddings.BatchSize > 0 {
		base.Embeddings.BatchSize = override.Embeddings.BatchSize
	}
	if override.Embeddings.PricePer1KTokens > 0 {
		base.Embeddings.PricePer1KTokens = override.Embeddings.PricePer1KTokens
	}

	if override.Summaries.Model != "" {
		base.Summaries.Model = override.Summaries.Model
	}
	if override.Summaries.APIKey != "" {
		base.Summaries.APIKey = override.Summaries.APIKey
	}
	if override.Summaries.Endpoint != "" {
		base.Summaries.Endpoint = override.Summaries.Endpoint
	}
	if override.Summaries.MaxTokens > 0 {
		base.Summaries.MaxTokens = override.Summaries.MaxTokens
	}
	if override.Summaries.ContextBudget > 0 {
		base.Summaries.ContextBudget = override.Summaries.ContextBudget
	}
	if override.Summaries.PricePer1KTokens > 0 {
		base.Summaries.PricePer1KTokens = override.Summaries.PricePer1KTokens
	}
	if override.Summaries.BatchLimit > 0 {
		base.Summaries.BatchLimit = override.Summaries.BatchLimit
	}
	base.Summaries.Enabled = base.Summaries.Enabled || override.Summaries.Enabled

	if override.Pipeline.Workers > 0 {
		base.Pipeline.Workers = override.Pipeline.Workers
	}
	if override.Pipeline.TimeoutSeconds > 0 {
		base.Pipeline.TimeoutSeconds = override.Pipeline.TimeoutSeconds
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	base.Scheduler.RunOnStart = base.Scheduler.RunOnStart || override.Scheduler.RunOnStart

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "data/papers.db"},
		Data:     DataConfig{PDFDir: "data/pdf"},
		Fetch: FetchConfig{
			Source:    "arxiv-api",
			Topic:     "retrieval augmented generation",
			DaysBack:  7,
			MaxPapers: 50,
		},
		Chunking: ChunkingConfig{Size: 1000, OverlapFraction: 0.2},
		Embeddings: EmbeddingsConfig{
			Provider:         "openai",
			Model:            "text-embedding-3-small",
			Endpoint:         "https://api.openai.com/v1/embeddings",
			BatchSize:        64,
			PricePer1KTokens: 0.00002,
		},
		Summaries: SummariesConfig{
			Enabled:          false,
			Model:            "gpt-4o-mini",
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			MaxTokens:        1024,
			ContextBudget:    12000,
			PricePer1KTokens: 0.00015,
			BatchLimit:       20,
		},
		Pipeline:  PipelineConfig{Workers: 4, TimeoutSeconds: 60},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
	}
}
