// Package config loads rolecast settings from defaults, a YAML or JSON file,
// ROLECAST_ environment variables and command line overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "ROLECAST_"

type Config struct {
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Bandit      BanditConfig      `koanf:"bandit"`
	Role        RoleConfig        `koanf:"role"`
	DecisionLog DecisionLogConfig `koanf:"decision_log"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type BanditConfig struct {
	Epsilon    float64 `koanf:"epsilon"`
	Seed       uint64  `koanf:"seed"`  // 0 seeds from the clock
	Store      string  `koanf:"store"` // file, sqlite, memory
	StatePath  string  `koanf:"state_path"`
	Codec      string  `koanf:"codec"` // json, cbor
	SQLitePath string  `koanf:"sqlite_path"`
	StateKey   string  `koanf:"state_key"`
}

type RoleConfig struct {
	CognitiveLoadThreshold   float64 `koanf:"cognitive_load_threshold"`
	TeamPerformanceThreshold float64 `koanf:"team_performance_threshold"`
	RelianceThreshold        float64 `koanf:"reliance_threshold"`
}

type DecisionLogConfig struct {
	Enabled    bool   `koanf:"enabled"`
	SQLitePath string `koanf:"sqlite_path"`
}

// Global k instance
var k = koanf.New(".")

func setDefaults() {
	k = koanf.New(".")
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", true)

	k.Set("bandit.epsilon", 0.1)
	k.Set("bandit.seed", 0)
	k.Set("bandit.store", "file")
	k.Set("bandit.state_path", "./bandit_state.json")
	k.Set("bandit.codec", "json")
	k.Set("bandit.sqlite_path", "./rolecast.db")
	k.Set("bandit.state_key", "default")

	k.Set("role.cognitive_load_threshold", 4.0)
	k.Set("role.team_performance_threshold", 4.0)
	k.Set("role.reliance_threshold", 0.5)

	k.Set("decision_log.enabled", false)
	k.Set("decision_log.sqlite_path", "./rolecast.db")
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus an optional profile overlay: for config.yaml
// and profile "dev", config.dev.yaml is merged over the base file when it
// exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration using the command line arguments --config,
// --profile (alias --env) and repeatable --set key=value overrides. Values of
// --set are decoded as JSON when possible and kept as strings otherwise.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides map[string]any) (*Config, error) {
	setDefaults()

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", overlay, err)
			}
		}
	}

	// 2. Load from ENV (ROLECAST_BANDIT_STATE_PATH -> bandit.state_path)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	// 3. CLI overrides
	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ROLECAST_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return section
	}
	if section == "decision" && strings.HasPrefix(key, "log_") {
		return "decision_log." + strings.TrimPrefix(key, "log_")
	}
	return section + "." + key
}

// profileConfigPath returns the profile overlay for base, or "" when there is
// none on disk.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	overrides := make(map[string]any)

	value := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("missing value for %s", flag)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		v := inline
		if !hasInline {
			var err error
			if v, err = value(i, name); err != nil {
				return opts, nil, err
			}
			i++
		}
		switch name {
		case "--config":
			opts.path = v
		case "--profile", "--env":
			opts.profile = v
		case "--set":
			key, raw, ok := strings.Cut(v, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return opts, nil, fmt.Errorf("invalid --set %q, expected key=value", v)
			}
			overrides[key] = decodeValue(raw)
		}
	}
	return opts, overrides, nil
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter: unknown exporter %q", c.Telemetry.Exporter)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Bandit.Epsilon < 0 || c.Bandit.Epsilon > 1 {
		return fmt.Errorf("bandit.epsilon: %v is outside [0, 1]", c.Bandit.Epsilon)
	}
	switch c.Bandit.Store {
	case "file":
		if c.Bandit.StatePath == "" {
			return fmt.Errorf("bandit.state_path is required for the file store")
		}
	case "sqlite":
		if c.Bandit.SQLitePath == "" {
			return fmt.Errorf("bandit.sqlite_path is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("bandit.store: unknown store %q", c.Bandit.Store)
	}
	switch c.Bandit.Codec {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("bandit.codec: unknown codec %q", c.Bandit.Codec)
	}
	if c.DecisionLog.Enabled && c.DecisionLog.SQLitePath == "" {
		return fmt.Errorf("decision_log.sqlite_path is required when the decision log is enabled")
	}
	return nil
}
