package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".yamltr"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g.
// YAMLTR_API_OPENAI_API_KEY.
const envPrefix = "YAMLTR"

// Load reads configuration from file, environment and defaults. A
// non-empty path names an explicit config file; otherwise the file is
// searched in the working directory and $HOME. A missing file is not
// an error, the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// API keys commonly live in the conventional variables.
	if cfg.API.OpenAIKey == "" {
		cfg.API.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.API.GeminiKey == "" {
		cfg.API.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("api.provider", "openai")
	v.SetDefault("api.model", "gpt-4o-mini")
	v.SetDefault("api.max_tokens", 4096)
	v.SetDefault("api.temperature", 0.3)
	v.SetDefault("api.timeout", 120)
	v.SetDefault("api.use_breaker", true)
	v.SetDefault("api.breaker_trips", 5)

	v.SetDefault("translation.source_language", "English")
	v.SetDefault("translation.target_language", "German")
	v.SetDefault("translation.concurrency", 4)

	v.SetDefault("chunk.max_chunk_size", 200)
	v.SetDefault("chunk.split_keywords", []string{"---", "===", "###"})
	v.SetDefault("chunk.look_ahead", 10)
	v.SetDefault("chunk.indent_unit", 2)

	v.SetDefault("retry.max_network_retries", 3)
	v.SetDefault("retry.max_rate_limit_retries", 5)
	v.SetDefault("retry.max_api_retries", 3)
	v.SetDefault("retry.max_validation_retries", 2)
	v.SetDefault("retry.max_timeout_retries", 3)
	v.SetDefault("retry.max_unknown_retries", 2)
	v.SetDefault("retry.base_wait", 1.0)
	v.SetDefault("retry.min_wait", 0.1)
	v.SetDefault("retry.max_wait", 300.0)
	v.SetDefault("retry.jitter_factor", 0.1)

	v.SetDefault("progress.dir", ".yamltr/progress")
	v.SetDefault("progress.save_interval", 30.0)
	v.SetDefault("progress.auto_resume", true)
	v.SetDefault("progress.max_checkpoint_days", 7)
	v.SetDefault("progress.cost_per_1k_tokens", 0.002)

	v.SetDefault("blacklist.case_sensitive", false)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.suffix", ".bak")
	v.SetDefault("backup.keep_count", 5)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", ".yamltr/cache.db")
	v.SetDefault("cache.max_days", 90)

	v.SetDefault("files.include_patterns", []string{"*.yaml", "*.yml"})
	v.SetDefault("files.exclude_dirs", []string{".git", "node_modules", "vendor"})
	v.SetDefault("files.recursive", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
