// Package config loads scribe.yaml and applies SCRIBE_* environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"scribe/format"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type DeepgramConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

type StoreConfig struct {
	Mode string `yaml:"mode"` // sqlite | memory
	Path string `yaml:"path"`
}

// TimingConfig holds every delay of the recording session in milliseconds.
type TimingConfig struct {
	SettleDelayMs   int `yaml:"settle_delay_ms"`
	RestartDelayMs  int `yaml:"restart_delay_ms"`
	TickIntervalMs  int `yaml:"tick_interval_ms"`
	StatusTTLMs     int `yaml:"status_ttl_ms"`
	ErrorTTLMs      int `yaml:"error_ttl_ms"`
	StopGraceMs     int `yaml:"stop_grace_ms"`
	DraftDebounceMs int `yaml:"draft_debounce_ms"`
	NoSpeechMs      int `yaml:"no_speech_ms"`
	HotkeyHoldMs    int `yaml:"hotkey_hold_ms"`
}

type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Socket  string `yaml:"socket"`
}

type LogConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type Config struct {
	Language      string         `yaml:"language"`
	Languages     []string       `yaml:"languages"`
	Punctuation   string         `yaml:"punctuation"`
	Engine        string         `yaml:"engine"` // deepgram | fake
	Device        string         `yaml:"device"`
	Deepgram      DeepgramConfig `yaml:"deepgram"`
	Store         StoreConfig    `yaml:"store"`
	Timing        TimingConfig   `yaml:"timing"`
	Control       ControlConfig  `yaml:"control"`
	Hotkey        bool           `yaml:"hotkey"`
	Notifications bool           `yaml:"notifications"`
	Sounds        bool           `yaml:"sounds"`
	Log           LogConfig      `yaml:"log"`
}

func Default() Config {
	return Config{
		Language:    "ru-RU",
		Languages:   []string{"ru-RU", "en-US", "uk-UA", "de-DE", "fr-FR", "es-ES"},
		Punctuation: "medium",
		Engine:      "deepgram",
		Deepgram:    DeepgramConfig{Model: "nova-3"},
		Store:       StoreConfig{Mode: "sqlite"},
		Timing: TimingConfig{
			SettleDelayMs:   300,
			RestartDelayMs:  100,
			TickIntervalMs:  1000,
			StatusTTLMs:     3000,
			ErrorTTLMs:      5000,
			StopGraceMs:     1000,
			DraftDebounceMs: 2000,
			NoSpeechMs:      8000,
			HotkeyHoldMs:    400,
		},
		Control:       ControlConfig{Enabled: true},
		Hotkey:        true,
		Notifications: true,
		Sounds:        true,
		Log:           LogConfig{MaxSizeMB: 5, MaxBackups: 3},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/scribe/config.yaml or the OS equivalent.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "scribe", "config.yaml")
}

// DefaultSocket is the control socket path used when none is configured.
func DefaultSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "scribe.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("scribe-%d.sock", os.Getuid()))
}

// Load reads path, applies environment overrides, then overrides, and
// validates the result. An empty path means DefaultPath, which is allowed to
// be missing.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	applyDerived(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without overrides or validation. Client subcommands use it
// to find the control socket without needing an API key.
func Read(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDerived(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Language, "SCRIBE_LANGUAGE")
	overrideString(&cfg.Punctuation, "SCRIBE_PUNCTUATION")
	overrideString(&cfg.Engine, "SCRIBE_ENGINE")
	overrideString(&cfg.Device, "SCRIBE_DEVICE")
	overrideString(&cfg.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Deepgram.APIKey, "SCRIBE_DEEPGRAM_API_KEY")
	overrideString(&cfg.Deepgram.Model, "SCRIBE_DEEPGRAM_MODEL")
	overrideString(&cfg.Deepgram.Endpoint, "SCRIBE_DEEPGRAM_ENDPOINT")
	overrideString(&cfg.Store.Mode, "SCRIBE_STORE_MODE")
	overrideString(&cfg.Store.Path, "SCRIBE_STORE_PATH")
	overrideInt(&cfg.Timing.SettleDelayMs, "SCRIBE_SETTLE_DELAY_MS")
	overrideInt(&cfg.Timing.RestartDelayMs, "SCRIBE_RESTART_DELAY_MS")
	overrideInt(&cfg.Timing.DraftDebounceMs, "SCRIBE_DRAFT_DEBOUNCE_MS")
	overrideBool(&cfg.Control.Enabled, "SCRIBE_CONTROL_ENABLED")
	overrideString(&cfg.Control.Socket, "SCRIBE_CONTROL_SOCKET")
	overrideBool(&cfg.Hotkey, "SCRIBE_HOTKEY")
	overrideBool(&cfg.Notifications, "SCRIBE_NOTIFICATIONS")
	overrideBool(&cfg.Sounds, "SCRIBE_SOUNDS")
	overrideString(&cfg.Log.Dir, "SCRIBE_LOG_PATH")
}

func applyDerived(cfg *Config) {
	if cfg.Control.Socket == "" {
		cfg.Control.Socket = DefaultSocket()
	}
	if cfg.Store.Path == "" && cfg.Store.Mode == "sqlite" {
		cfg.Store.Path = filepath.Join(filepath.Dir(DefaultPath()), "scribe.db")
	}
	found := false
	for _, l := range cfg.Languages {
		if l == cfg.Language {
			found = true
			break
		}
	}
	if !found {
		cfg.Languages = append([]string{cfg.Language}, cfg.Languages...)
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && value != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if err := ValidateLanguage(cfg.Language); err != nil {
		return err
	}
	for _, l := range cfg.Languages {
		if err := ValidateLanguage(l); err != nil {
			return err
		}
	}
	if _, err := format.ParseLevel(cfg.Punctuation); err != nil {
		return err
	}
	switch cfg.Engine {
	case "deepgram":
		if cfg.Deepgram.APIKey == "" {
			return errors.New("deepgram engine requires an api key (set DEEPGRAM_API_KEY)")
		}
	case "fake":
	default:
		return fmt.Errorf("unknown engine %q (want deepgram or fake)", cfg.Engine)
	}
	switch cfg.Store.Mode {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store mode %q (want sqlite or memory)", cfg.Store.Mode)
	}
	t := cfg.Timing
	for name, v := range map[string]int{
		"settle_delay_ms":   t.SettleDelayMs,
		"restart_delay_ms":  t.RestartDelayMs,
		"tick_interval_ms":  t.TickIntervalMs,
		"status_ttl_ms":     t.StatusTTLMs,
		"error_ttl_ms":      t.ErrorTTLMs,
		"stop_grace_ms":     t.StopGraceMs,
		"draft_debounce_ms": t.DraftDebounceMs,
		"no_speech_ms":      t.NoSpeechMs,
		"hotkey_hold_ms":    t.HotkeyHoldMs,
	} {
		if v <= 0 {
			return fmt.Errorf("timing.%s must be positive", name)
		}
	}
	return nil
}

// ValidateLanguage checks that tag is a well-formed BCP 47 language tag.
func ValidateLanguage(tag string) error {
	if tag == "" {
		return errors.New("language must not be empty")
	}
	if _, err := language.Parse(tag); err != nil {
		return fmt.Errorf("invalid language %q: %w", tag, err)
	}
	return nil
}

// Level returns the parsed punctuation level. Load has already validated it.
func (c Config) Level() format.Level {
	l, _ := format.ParseLevel(c.Punctuation)
	return l
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t TimingConfig) SettleDelay() time.Duration   { return ms(t.SettleDelayMs) }
func (t TimingConfig) RestartDelay() time.Duration  { return ms(t.RestartDelayMs) }
func (t TimingConfig) TickInterval() time.Duration  { return ms(t.TickIntervalMs) }
func (t TimingConfig) StatusTTL() time.Duration     { return ms(t.StatusTTLMs) }
func (t TimingConfig) ErrorTTL() time.Duration      { return ms(t.ErrorTTLMs) }
func (t TimingConfig) StopGrace() time.Duration     { return ms(t.StopGraceMs) }
func (t TimingConfig) DraftDebounce() time.Duration { return ms(t.DraftDebounceMs) }
func (t TimingConfig) NoSpeech() time.Duration      { return ms(t.NoSpeechMs) }
func (t TimingConfig) HotkeyHold() time.Duration   { return ms(t.HotkeyHoldMs) }
