// Package config implements the engine's layered configuration stack:
// built-in defaults, a global file, a project file, and environment
// variables, in ascending priority. Generalized from the teacher's
// DefaultConfig/Merge/LoadConfig idiom (kernel/config.go) onto
// `github.com/spf13/viper` for the env-var and multi-file layering the
// teacher's own hand-rolled JSON loader does not need to do.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
)

// Config is the engine's resolved directive surface.
type Config struct {
	ClaudeAPIKey  string                  `mapstructure:"claude_api_key"`
	LogLevel      string                  `mapstructure:"log_level"`
	AutoCommit    bool                    `mapstructure:"auto_commit"`
	Editor        string                  `mapstructure:"editor"`
	MaxConcurrent int                     `mapstructure:"max_concurrent"`
	MapReduce     MapReduceConfig         `mapstructure:"mapreduce"`
}

// MapReduceConfig is the nested section controlling job execution
// defaults, matching the structured MAPREDUCE__* environment form.
type MapReduceConfig struct {
	MaxParallel     int                     `mapstructure:"max_parallel"`
	RetryOnFailure  int                     `mapstructure:"retry_on_failure"`
	TimeoutPerAgent time.Duration           `mapstructure:"timeout_per_agent"`
	ErrorPolicy     errorpolicytypes.Policy `mapstructure:"error_policy"`
}

// DefaultConfig returns the engine's built-in defaults, the bottom
// layer of the precedence stack.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		AutoCommit:    true,
		Editor:        "vi",
		MaxConcurrent: 5,
		MapReduce: MapReduceConfig{
			MaxParallel:     5,
			RetryOnFailure:  2,
			TimeoutPerAgent: 10 * time.Minute,
			ErrorPolicy:     errorpolicytypes.DefaultPolicy(),
		},
	}
}

// legacyEnvAliases maps the engine's historical single-underscore
// environment variables onto their structured viper keys.
var legacyEnvAliases = map[string]string{
	"CLAUDE_API_KEY": "claude_api_key",
	"LOG_LEVEL":      "log_level",
	"AUTO_COMMIT":    "auto_commit",
	"EDITOR":         "editor",
	"MAX_CONCURRENT": "max_concurrent",
}

// Loader resolves layered configuration for one invocation of the
// engine: defaults, an optional global file, an optional project
// file, and environment variables.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader seeded with DefaultConfig's values.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	for env, key := range legacyEnvAliases {
		_ = v.BindEnv(key, env)
	}

	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("claude_api_key", cfg.ClaudeAPIKey)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("auto_commit", cfg.AutoCommit)
	v.SetDefault("editor", cfg.Editor)
	v.SetDefault("max_concurrent", cfg.MaxConcurrent)
	v.SetDefault("mapreduce.max_parallel", cfg.MapReduce.MaxParallel)
	v.SetDefault("mapreduce.retry_on_failure", cfg.MapReduce.RetryOnFailure)
	v.SetDefault("mapreduce.timeout_per_agent", cfg.MapReduce.TimeoutPerAgent)
	v.SetDefault("mapreduce.error_policy.on_item_failure", string(cfg.MapReduce.ErrorPolicy.OnItemFailure))
	v.SetDefault("mapreduce.error_policy.continue_on_failure", cfg.MapReduce.ErrorPolicy.ContinueOnFailure)
	v.SetDefault("mapreduce.error_policy.error_collection", string(cfg.MapReduce.ErrorPolicy.ErrorCollection))
}

// MergeFile merges one config file (YAML, JSON or TOML, by
// extension) into the loader at its current priority position. Call
// MergeFile for the global file before the project file so the
// project file wins on conflicting keys.
func (l *Loader) MergeFile(path string) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "merge config file %s", path)
	}
	return nil
}

// Load resolves the final Config from every merged layer plus
// environment variables, which always take highest precedence because
// AutomaticEnv is consulted on every Get.
func (l *Loader) Load() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, ferrors.Wrap(ferrors.KindSerialization, err, "decode config")
	}
	return cfg, nil
}

// ProjectFilePath returns the conventional project-scoped config path
// relative to repoRoot.
func ProjectFilePath(repoRoot string) string {
	return filepath.Join(repoRoot, ".mapreduce", "config.yaml")
}

// GlobalFilePath returns the conventional per-user config path under
// home.
func GlobalFilePath(home string) string {
	return filepath.Join(home, ".config", "mapreduce", "config.yaml")
}
