// Package config loads the fastwordpiece configuration from defaults,
// config file, environment, and command-line flags, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Build    BuildConfig  `mapstructure:"build"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath string `mapstructure:"model_path"`
	VocabPath string `mapstructure:"vocab_path"`
}

// BuildConfig selects how `fastwordpiece build` compiles a vocabulary.
type BuildConfig struct {
	SuffixIndicator       string `mapstructure:"suffix_indicator"`
	UnkToken              string `mapstructure:"unk_token"`
	MaxBytesPerToken      int    `mapstructure:"max_bytes_per_token"`
	EndToEnd              bool   `mapstructure:"end_to_end"`
	SupportDetokenization bool   `mapstructure:"support_detokenization"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	Workers        int    `mapstructure:"workers"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath: "models/wordpiece.model",
			VocabPath: "models/vocab.txt",
		},
		Build: BuildConfig{
			SuffixIndicator:       "##",
			UnkToken:              "[UNK]",
			MaxBytesPerToken:      100,
			EndToEnd:              true,
			SupportDetokenization: true,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			MaxTextBytes:   1 << 20,
			Workers:        4,
			RequestTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to compiled tokenizer model")
	fs.String("model", defaults.Paths.ModelPath, "Path to compiled tokenizer model (alias for --paths-model-path)")
	fs.String("paths-vocab-path", defaults.Paths.VocabPath, "Path to vocabulary file (one piece per line)")
	fs.String("build-suffix-indicator", defaults.Build.SuffixIndicator, "Continuation piece marker")
	fs.String("build-unk-token", defaults.Build.UnkToken, "Unknown token piece")
	fs.Int("build-max-bytes-per-token", defaults.Build.MaxBytesPerToken, "Maximum input word length in bytes")
	fs.Bool("build-end-to-end", defaults.Build.EndToEnd, "Compile whitespace/punctuation splitting into the model")
	fs.Bool("build-support-detokenization", defaults.Build.SupportDetokenization, "Keep the vocabulary in the model for detokenization")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-workers", defaults.Server.Workers, "Maximum concurrent tokenizations")
	fs.Int("server-request-timeout-seconds", defaults.Server.RequestTimeout, "Maximum time to read a request, in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		// Each key binds to the flag named after it ("server.listen_addr" ->
		// --server-listen-addr); --model takes over when it is given.
		fs := opts.Cmd.Flags()
		for _, key := range v.AllKeys() {
			name := strings.NewReplacer(".", "-", "_", "-").Replace(key)
			if key == "paths.model_path" && fs.Changed("model") {
				name = "model"
			}
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flags: %w", err)
				}
			}
		}
	}

	v.SetEnvPrefix("FASTWORDPIECE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("fastwordpiece")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("build.suffix_indicator", c.Build.SuffixIndicator)
	v.SetDefault("build.unk_token", c.Build.UnkToken)
	v.SetDefault("build.max_bytes_per_token", c.Build.MaxBytesPerToken)
	v.SetDefault("build.end_to_end", c.Build.EndToEnd)
	v.SetDefault("build.support_detokenization", c.Build.SupportDetokenization)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout_seconds", c.Server.RequestTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
