package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates nested keys, so KNOLNOTE_AI__API_KEY sets ai.api_key.
const EnvPrefix = "KNOLNOTE_"

const defaultConfigFile = "knolnote.yaml"

// AutoPlay holds the swipe auto-play delays.
type AutoPlay struct {
	Front time.Duration `koanf:"front" validate:"gt=0"`
	Back  time.Duration `koanf:"back" validate:"gt=0"`
}

// AI selects the text generator used for note generation.
type AI struct {
	Provider string `koanf:"provider" validate:"omitempty,oneof=gemini openai"`
	APIKey   string `koanf:"api_key"`
	Model    string `koanf:"model"`
}

// Config is the merged configuration. Later sources win: file, then
// environment, then flags.
type Config struct {
	DB             string        `koanf:"db" validate:"required"`
	ReposDir       string        `koanf:"repos_dir" validate:"required"`
	Addr           string        `koanf:"addr" validate:"required"`
	LeechThreshold int           `koanf:"leech_threshold" validate:"min=1"`
	FailDelay      time.Duration `koanf:"fail_delay" validate:"gt=0"`
	AutoPlay       AutoPlay      `koanf:"autoplay"`
	SyncInterval   time.Duration `koanf:"sync_interval" validate:"gte=0"`
	LogLevel       string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	AI             AI            `koanf:"ai"`

	AddSource string `koanf:"add_source"`
	Sync      bool   `koanf:"sync"`
	Serve     bool   `koanf:"serve"`
	Generate  string `koanf:"generate"`
	Out       string `koanf:"out"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db":              "db",
	"repos-dir":       "repos_dir",
	"addr":            "addr",
	"leech-threshold": "leech_threshold",
	"fail-delay":      "fail_delay",
	"autoplay-front":  "autoplay.front",
	"autoplay-back":   "autoplay.back",
	"sync-interval":   "sync_interval",
	"log-level":       "log_level",
	"ai-provider":     "ai.provider",
	"ai-key":          "ai.api_key",
	"ai-model":        "ai.model",
	"add-source":      "add_source",
	"sync":            "sync",
	"serve":           "serve",
	"generate":        "generate",
	"out":             "out",
}

// FlagSet declares every flag with its default.
func FlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("knolnote", pflag.ContinueOnError)
	f.String("config", defaultConfigFile, "Path to a YAML configuration file")
	f.String("db", "knolnote.db", "Path to the SQLite database file")
	f.String("repos-dir", "repos", "Directory for git source checkouts")
	f.String("addr", ":8080", "Address the HTTP API listens on")
	f.Int("leech-threshold", 8, "Lapses at which a card counts as a leech")
	f.Duration("fail-delay", 1500*time.Millisecond, "Delay before a failed card returns to the queue")
	f.Duration("autoplay-front", 3*time.Second, "Auto-play time on the front of a card")
	f.Duration("autoplay-back", 2*time.Second, "Auto-play time on the back of a card")
	f.Duration("sync-interval", 0, "Resync sources periodically while serving, 0 disables")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("ai-provider", "gemini", "Note generator: gemini or openai")
	f.String("ai-key", "", "API key for the note generator")
	f.String("ai-model", "", "Model for the note generator")
	f.String("add-source", "", "Add a new source (local path or git URL)")
	f.Bool("sync", false, "Sync all sources and exit")
	f.Bool("serve", false, "Serve the HTTP API")
	f.String("generate", "", "Generate an outline about a topic and import it")
	f.String("out", "", "Also write the generated outline to this file")
	return f
}

// Load parses args and merges the configuration file, environment and
// flags into a validated Config.
func Load(args []string) (*Config, error) {
	fs := FlagSet()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) || fs.Changed("config") {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SlogLevel converts LogLevel for a slog handler.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
