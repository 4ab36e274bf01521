package config

import (
	"fmt"
	"time"

	"codeberg.org/snonux/yamltr/internal/backup"
	"codeberg.org/snonux/yamltr/internal/blacklist"
	"codeberg.org/snonux/yamltr/internal/chunk"
	"codeberg.org/snonux/yamltr/internal/matcher"
	"codeberg.org/snonux/yamltr/internal/progress"
	"codeberg.org/snonux/yamltr/internal/prompt"
	"codeberg.org/snonux/yamltr/internal/retry"
	"codeberg.org/snonux/yamltr/internal/translate"
)

// Config aggregates every component's settings. Field names follow the
// config file keys; see Load for the file, environment and default
// precedence.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Translation TranslationConfig `mapstructure:"translation"`
	Chunk       ChunkConfig       `mapstructure:"chunk"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Blacklist   BlacklistConfig   `mapstructure:"blacklist"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Files       FilesConfig       `mapstructure:"files"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// APIConfig selects and parameterizes the translation backend.
type APIConfig struct {
	Provider     string  `mapstructure:"provider"`
	OpenAIKey    string  `mapstructure:"openai_api_key"`
	GeminiKey    string  `mapstructure:"gemini_api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	Timeout      int     `mapstructure:"timeout"`
	UseBreaker   bool    `mapstructure:"use_breaker"`
	BreakerTrips int     `mapstructure:"breaker_trips"`
}

// TranslationConfig holds the language pair and run parallelism.
type TranslationConfig struct {
	SourceLanguage string `mapstructure:"source_language"`
	TargetLanguage string `mapstructure:"target_language"`
	Template       string `mapstructure:"template"`
	Concurrency    int    `mapstructure:"concurrency"`
}

// ChunkConfig mirrors chunk.Config.
type ChunkConfig struct {
	MaxChunkSize  int      `mapstructure:"max_chunk_size"`
	SplitKeywords []string `mapstructure:"split_keywords"`
	LookAhead     int      `mapstructure:"look_ahead"`
	IndentUnit    int      `mapstructure:"indent_unit"`
}

// RetryConfig mirrors retry.Config with durations in seconds.
type RetryConfig struct {
	MaxNetworkRetries    int     `mapstructure:"max_network_retries"`
	MaxRateLimitRetries  int     `mapstructure:"max_rate_limit_retries"`
	MaxAPIRetries        int     `mapstructure:"max_api_retries"`
	MaxValidationRetries int     `mapstructure:"max_validation_retries"`
	MaxTimeoutRetries    int     `mapstructure:"max_timeout_retries"`
	MaxUnknownRetries    int     `mapstructure:"max_unknown_retries"`
	BaseWaitSeconds      float64 `mapstructure:"base_wait"`
	MinWaitSeconds       float64 `mapstructure:"min_wait"`
	MaxWaitSeconds       float64 `mapstructure:"max_wait"`
	JitterFactor         float64 `mapstructure:"jitter_factor"`
}

// ProgressConfig mirrors progress.Config with durations in seconds and
// days.
type ProgressConfig struct {
	Dir                 string  `mapstructure:"dir"`
	SaveIntervalSeconds float64 `mapstructure:"save_interval"`
	AutoResume          bool    `mapstructure:"auto_resume"`
	MaxCheckpointDays   int     `mapstructure:"max_checkpoint_days"`
	CostPer1KTokens     float64 `mapstructure:"cost_per_1k_tokens"`
}

// BlacklistConfig mirrors blacklist.Config.
type BlacklistConfig struct {
	Words         []string `mapstructure:"words"`
	Patterns      []string `mapstructure:"patterns"`
	CaseSensitive bool     `mapstructure:"case_sensitive"`
	File          string   `mapstructure:"file"`
}

// BackupConfig mirrors backup.Config.
type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	Suffix    string `mapstructure:"suffix"`
	KeepCount int    `mapstructure:"keep_count"`
}

// CacheConfig controls the translation memory.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	MaxDays int    `mapstructure:"max_days"`
}

// FilesConfig mirrors matcher.Config plus recursion.
type FilesConfig struct {
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	ExcludeDirs     []string `mapstructure:"exclude_dirs"`
	Recursive       bool     `mapstructure:"recursive"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate rejects combinations the run cannot work with.
func (c *Config) Validate() error {
	switch c.API.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown provider: %s", c.API.Provider)
	}
	if c.Translation.TargetLanguage == "" {
		return fmt.Errorf("target language must be set")
	}
	if c.Translation.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Chunk.MaxChunkSize < 1 {
		return fmt.Errorf("max chunk size must be at least 1")
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("jitter factor must be between 0 and 1")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	return nil
}

// APIKey returns the key for the selected provider.
func (c *Config) APIKey() string {
	if c.API.Provider == "gemini" {
		return c.API.GeminiKey
	}
	return c.API.OpenAIKey
}

// ChunkEngineConfig converts to the chunk engine's config type.
func (c *Config) ChunkEngineConfig() chunk.Config {
	return chunk.Config{
		MaxChunkSize:  c.Chunk.MaxChunkSize,
		SplitKeywords: c.Chunk.SplitKeywords,
		LookAhead:     c.Chunk.LookAhead,
		IndentUnit:    c.Chunk.IndentUnit,
	}
}

// RetryEngineConfig converts to the retry engine's config type.
func (c *Config) RetryEngineConfig() retry.Config {
	return retry.Config{
		MaxNetworkRetries:    c.Retry.MaxNetworkRetries,
		MaxRateLimitRetries:  c.Retry.MaxRateLimitRetries,
		MaxAPIRetries:        c.Retry.MaxAPIRetries,
		MaxValidationRetries: c.Retry.MaxValidationRetries,
		MaxTimeoutRetries:    c.Retry.MaxTimeoutRetries,
		MaxUnknownRetries:    c.Retry.MaxUnknownRetries,
		BaseWait:             secondsToDuration(c.Retry.BaseWaitSeconds),
		MinWait:              secondsToDuration(c.Retry.MinWaitSeconds),
		MaxWait:              secondsToDuration(c.Retry.MaxWaitSeconds),
		JitterFactor:         c.Retry.JitterFactor,
	}
}

// LedgerConfig converts to the progress ledger's config type.
func (c *Config) LedgerConfig() progress.Config {
	return progress.Config{
		Dir:              c.Progress.Dir,
		SaveInterval:     secondsToDuration(c.Progress.SaveIntervalSeconds),
		AutoResume:       c.Progress.AutoResume,
		MaxCheckpointAge: time.Duration(c.Progress.MaxCheckpointDays) * 24 * time.Hour,
		CostPer1KTokens:  c.Progress.CostPer1KTokens,
	}
}

// BlacklistManagerConfig converts to the blacklist's config type.
func (c *Config) BlacklistManagerConfig() blacklist.Config {
	return blacklist.Config{
		Words:         c.Blacklist.Words,
		Patterns:      c.Blacklist.Patterns,
		CaseSensitive: c.Blacklist.CaseSensitive,
		File:          c.Blacklist.File,
	}
}

// BackupManagerConfig converts to the backup manager's config type.
func (c *Config) BackupManagerConfig() backup.Config {
	return backup.Config{
		Dir:       c.Backup.Dir,
		Suffix:    c.Backup.Suffix,
		KeepCount: c.Backup.KeepCount,
	}
}

// MatcherConfig converts to the file matcher's config type.
func (c *Config) MatcherConfig() matcher.Config {
	return matcher.Config{
		IncludePatterns: c.Files.IncludePatterns,
		ExcludePatterns: c.Files.ExcludePatterns,
		ExcludeDirs:     c.Files.ExcludeDirs,
	}
}

// PromptConfig converts to the prompt builder's config type.
func (c *Config) PromptConfig() prompt.Config {
	return prompt.Config{
		SourceLanguage: c.Translation.SourceLanguage,
		TargetLanguage: c.Translation.TargetLanguage,
		Template:       c.Translation.Template,
	}
}

// TranslateConfig converts to the provider request config.
func (c *Config) TranslateConfig() translate.Config {
	return translate.Config{
		Model:       c.API.Model,
		MaxTokens:   c.API.MaxTokens,
		Temperature: c.API.Temperature,
		Timeout:     c.API.Timeout,
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
