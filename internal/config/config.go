package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RepoDirName is the per-repository state directory.
const RepoDirName = ".ivaldi"

// Config represents ivm configuration
type Config struct {
	User     UserConfig     `json:"user"`
	Mutation MutationConfig `json:"mutation"`
	Color    ColorConfig    `json:"color"`
}

// UserConfig holds user identity information
type UserConfig struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// MutationConfig controls the recording subsystem
type MutationConfig struct {
	// Record enables mutation recording. Unset means enabled.
	Record *bool `json:"record,omitempty"`
	// Date pins the timestamp of new entries, either "<unix> <offset>"
	// with the offset in seconds east of UTC, or RFC 3339.
	Date string `json:"date,omitempty"`
}

// ColorConfig holds color settings
type ColorConfig struct {
	UI *bool `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	on := true
	ui := true
	return &Config{
		Mutation: MutationConfig{Record: &on},
		Color:    ColorConfig{UI: &ui},
	}
}

// RecordEnabled reports whether new mutation entries are recorded.
func (c *Config) RecordEnabled() bool {
	return c.Mutation.Record == nil || *c.Mutation.Record
}

// ColorUI reports whether CLI output is colored.
func (c *Config) ColorUI() bool {
	return c.Color.UI == nil || *c.Color.UI
}

// Clock returns the time source for new entries, honoring mutation.date.
func (c *Config) Clock() (func() time.Time, error) {
	if c.Mutation.Date == "" {
		return time.Now, nil
	}
	t, err := ParseDate(c.Mutation.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid mutation.date: %w", err)
	}
	return func() time.Time { return t }, nil
}

// ParseDate parses "<unix> <offset>" or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%q: expected \"<unix> <offset>\" or RFC 3339", s)
	}
	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: bad unix time: %w", s, err)
	}
	off, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: bad offset: %w", s, err)
	}
	return time.Unix(sec, 0).In(time.FixedZone("", off)), nil
}

// globalConfigPath returns the path to the global config file
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ivmconfig"), nil
}

// repoConfigPath returns the path to the repository config file
func repoConfigPath(root string) string {
	return filepath.Join(root, RepoDirName, "ivm.json")
}

// LoadConfig loads configuration from both global and repository config
// files. Repository config takes precedence over global config.
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if err := mergeFile(cfg, globalPath); err != nil {
			return nil, err
		}
	}
	if err := mergeFile(cfg, repoConfigPath(root)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(dst *Config, path string) error {
	src, err := readFile(path)
	if err != nil || src == nil {
		return err
	}
	mergeConfig(dst, src)
	return nil
}

// readFile returns nil, nil when the file does not exist.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

func save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Keys lists every supported key in section.key form.
var Keys = []string{"user.name", "user.email", "mutation.record", "mutation.date", "color.ui"}

// GetValue retrieves a configuration value by key (e.g., "user.name")
func GetValue(root, key string) (string, error) {
	cfg, err := LoadConfig(root)
	if err != nil {
		return "", err
	}
	return cfg.Get(key)
}

// Get returns the value of one key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "user.name":
		return c.User.Name, nil
	case "user.email":
		return c.User.Email, nil
	case "mutation.record":
		return strconv.FormatBool(c.RecordEnabled()), nil
	case "mutation.date":
		return c.Mutation.Date, nil
	case "color.ui":
		return strconv.FormatBool(c.ColorUI()), nil
	}
	return "", unknownKey(key)
}

// SetValue sets a configuration value by key (e.g., "user.name", "Your
// Name") in the global or repository file.
func SetValue(root, key, value string, global bool) error {
	path := repoConfigPath(root)
	if global {
		p, err := globalConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := readFile(path)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &Config{}
	}

	switch key {
	case "user.name":
		cfg.User.Name = value
	case "user.email":
		cfg.User.Email = value
	case "mutation.record":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("mutation.record: %w", err)
		}
		cfg.Mutation.Record = &b
	case "mutation.date":
		if value != "" {
			if _, err := ParseDate(value); err != nil {
				return err
			}
		}
		cfg.Mutation.Date = value
	case "color.ui":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("color.ui: %w", err)
		}
		cfg.Color.UI = &b
	default:
		return unknownKey(key)
	}
	return save(path, cfg)
}

func unknownKey(key string) error {
	if !strings.Contains(key, ".") {
		return fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}
	return fmt.Errorf("unknown config key: %s", key)
}

// GetAuthor returns the formatted author string "Name <email>"
func GetAuthor(root string) (string, error) {
	cfg, err := LoadConfig(root)
	if err != nil {
		return "", err
	}
	return cfg.Author()
}

// Author formats the configured identity.
func (c *Config) Author() (string, error) {
	if c.User.Name == "" || c.User.Email == "" {
		return "", fmt.Errorf("user.name and user.email not configured. Run: ivm config user.name \"Your Name\" && ivm config user.email \"you@example.com\"")
	}
	return fmt.Sprintf("%s <%s>", c.User.Name, c.User.Email), nil
}

// mergeConfig merges source config into destination config.
// Only values set in source override destination.
func mergeConfig(dst, src *Config) {
	if src.User.Name != "" {
		dst.User.Name = src.User.Name
	}
	if src.User.Email != "" {
		dst.User.Email = src.User.Email
	}
	if src.Mutation.Record != nil {
		dst.Mutation.Record = src.Mutation.Record
	}
	if src.Mutation.Date != "" {
		dst.Mutation.Date = src.Mutation.Date
	}
	if src.Color.UI != nil {
		dst.Color.UI = src.Color.UI
	}
}
