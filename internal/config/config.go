// Package config loads, validates and edits the MediBot configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"medibot/internal/session"
)

// Config is the root configuration for MediBot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Session  SessionConfig  `json:"session" yaml:"session"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Support  SupportConfig  `json:"support" yaml:"support"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// BackendConfig points at the pharmacy REST backend.
type BackendConfig struct {
	BaseURL        string `json:"baseURL" yaml:"baseURL"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Retries        int    `json:"retries" yaml:"retries"` // transient-failure retries per call
}

// Timeout returns the per-call timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" | "mysql"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type SessionConfig struct {
	Driver        string      `json:"driver" yaml:"driver"` // "memory" | "redis"
	TTLMinutes    int         `json:"ttlMinutes" yaml:"ttlMinutes"`
	SweepSchedule string      `json:"sweepSchedule" yaml:"sweepSchedule"`
	Redis         RedisConfig `json:"redis" yaml:"redis"`
}

// TTL returns the sender context lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
}

type DispatchConfig struct {
	Lanes      int `json:"lanes" yaml:"lanes"`
	LaneBuffer int `json:"laneBuffer" yaml:"laneBuffer"`
}

type SearchConfig struct {
	Limit int `json:"limit" yaml:"limit"` // hits requested per backend search
}

type SupportConfig struct {
	Contact string `json:"contact" yaml:"contact"`
}

type ChannelsConfig struct {
	Twilio   TwilioConfig   `json:"twilio" yaml:"twilio"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Webhook  WebhookConfig  `json:"webhook" yaml:"webhook"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	CLI      CLIConfig      `json:"cli" yaml:"cli"`
}

type TwilioConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	AccountSID string `json:"accountSid,omitempty" yaml:"accountSid,omitempty"`
	AuthToken  string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
	From       string `json:"from,omitempty" yaml:"from,omitempty"`
	PublicURL  string `json:"publicURL,omitempty" yaml:"publicURL,omitempty"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	AccessToken   string `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty"`
	AppSecret     string `json:"appSecret,omitempty" yaml:"appSecret,omitempty"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Secret  string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Token     string         `json:"token" yaml:"token"`
	AllowFrom FlexStringList `json:"allowFrom" yaml:"allowFrom"`
}

type CLIConfig struct {
	Sender string `json:"sender" yaml:"sender"` // phone number used by `chat` and `ask`
}

// FlexStringList is a []string that can unmarshal from arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// UnmarshalYAML accepts a sequence of scalars; YAML numbers keep their literal text.
func (f *FlexStringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: allowFrom must be a list", node.Line)
	}
	result := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: allowFrom entries must be scalars", item.Line)
		}
		result = append(result, item.Value)
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.medibot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".medibot"
	}
	return filepath.Join(home, ".medibot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML config, overlays it onto Defaults and validates it.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.Path = ExpandPath(cfg.Store.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON or YAML depending on the file extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values, reporting every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, "backend.baseURL is required")
	} else if !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		errs = append(errs, "backend.baseURL must start with http:// or https://")
	}
	if cfg.Backend.TimeoutSeconds < 1 || cfg.Backend.TimeoutSeconds > 120 {
		errs = append(errs, "backend.timeoutSeconds must be between 1 and 120")
	}
	if cfg.Backend.Retries < 0 || cfg.Backend.Retries > 10 {
		errs = append(errs, "backend.retries must be between 0 and 10")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case "mysql":
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the mysql driver")
		}
	default:
		errs = append(errs, "store.driver must be one of: sqlite, mysql")
	}

	switch cfg.Session.Driver {
	case "memory":
	case "redis":
		if cfg.Session.Redis.Addr == "" {
			errs = append(errs, "session.redis.addr is required for the redis driver")
		}
	default:
		errs = append(errs, "session.driver must be one of: memory, redis")
	}
	if cfg.Session.TTLMinutes < 1 {
		errs = append(errs, "session.ttlMinutes must be >= 1")
	}
	if err := session.ValidateSchedule(cfg.Session.SweepSchedule); err != nil {
		errs = append(errs, "session.sweepSchedule: "+err.Error())
	}

	if cfg.Dispatch.Lanes < 1 || cfg.Dispatch.Lanes > 256 {
		errs = append(errs, "dispatch.lanes must be between 1 and 256")
	}
	if cfg.Dispatch.LaneBuffer < 1 {
		errs = append(errs, "dispatch.laneBuffer must be >= 1")
	}
	if cfg.Search.Limit < 5 || cfg.Search.Limit > 100 {
		errs = append(errs, "search.limit must be between 5 and 100")
	}

	ch := cfg.Channels
	if ch.Twilio.Enabled && (ch.Twilio.AccountSID == "" || ch.Twilio.AuthToken == "" || ch.Twilio.From == "") {
		errs = append(errs, "channels.twilio: accountSid, authToken and from are required when enabled")
	}
	if ch.WhatsApp.Enabled && (ch.WhatsApp.AccessToken == "" || ch.WhatsApp.PhoneNumberID == "" || ch.WhatsApp.VerifyToken == "") {
		errs = append(errs, "channels.whatsapp: accessToken, phoneNumberId and verifyToken are required when enabled")
	}
	if ch.Telegram.Enabled && ch.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
