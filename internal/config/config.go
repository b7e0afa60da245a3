// Package config provides unified configuration management for programmator.
// Configuration is loaded from multiple sources with the following precedence:
// embedded defaults → global file → env vars → local file → CLI flags
package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ticketloop/programmator/internal/dirs"
	"github.com/ticketloop/programmator/internal/safety"
)

//go:embed defaults/config.yaml
var defaultsFS embed.FS

const configFile = "config.yaml"

// Config holds all configuration settings for programmator.
// Fields ending in Set record whether the field was explicitly set, so a
// later layer can override an earlier one with a zero value.
type Config struct {
	// Loop settings
	MaxIterations   int `yaml:"max_iterations"`
	StagnationLimit int `yaml:"stagnation_limit"`
	Timeout         int `yaml:"timeout"` // seconds

	// Agent settings
	ClaudeFlags     string `yaml:"claude_flags"`
	ClaudeConfigDir string `yaml:"claude_config_dir"`
	Streaming       bool   `yaml:"streaming"`

	// Ticket store settings
	TicketCommand string `yaml:"ticket_command"`
	TicketsDir    string `yaml:"tickets_dir"`

	// Progress log directory (default: dirs.LogsDir())
	LogsDir string `yaml:"logs_dir"`

	// Prompts are loaded separately, not from YAML.
	Prompts *Prompts `yaml:"-"`

	MaxIterationsSet   bool `yaml:"-"`
	StagnationLimitSet bool `yaml:"-"`
	TimeoutSet         bool `yaml:"-"`
	StreamingSet       bool `yaml:"-"`

	configDir string
	localDir  string
	sources   []string
}

// Sources returns the ordered list of sources that contributed to this config.
func (c *Config) Sources() []string {
	return c.sources
}

// LocalDir returns the local project config directory if one was detected.
func (c *Config) LocalDir() string {
	return c.localDir
}

// ConfigDir returns the global config directory.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Load loads configuration from the default locations, picking up
// .programmator/ in workDir as the local layer when it exists.
func Load(workDir string) (*Config, error) {
	var localDir string
	if workDir != "" {
		candidate := dirs.LocalConfigDir(workDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			localDir = candidate
		}
	}
	return LoadWithDirs(dirs.ConfigDir(), localDir)
}

// LoadWithDirs loads configuration with explicit global and local directories.
// If localDir is empty, only the global layer is used.
func LoadWithDirs(globalDir, localDir string) (*Config, error) {
	if err := InstallDefaults(globalDir); err != nil {
		return nil, fmt.Errorf("install defaults: %w", err)
	}

	cfg, err := loadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load embedded defaults: %w", err)
	}
	cfg.sources = append(cfg.sources, "embedded")

	globalPath := filepath.Join(globalDir, configFile)
	if globalCfg, err := loadFile(globalPath); err == nil {
		cfg.mergeFrom(globalCfg)
		cfg.sources = append(cfg.sources, globalPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load global config: %w", err)
	}

	cfg.applyEnv()

	if localDir != "" {
		localPath := filepath.Join(localDir, configFile)
		if localCfg, err := loadFile(localPath); err == nil {
			cfg.mergeFrom(localCfg)
			cfg.sources = append(cfg.sources, localPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load local config: %w", err)
		}
	}

	cfg.configDir = globalDir
	cfg.localDir = localDir

	prompts, err := LoadPrompts(globalDir, localDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	cfg.Prompts = prompts

	return cfg, nil
}

// InstallDefaults creates the config directory and writes the default config
// file if none exists yet.
func InstallDefaults(configDir string) error {
	if err := os.MkdirAll(filepath.Join(configDir, "prompts"), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, configFile)
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		data, err := defaultsFS.ReadFile("defaults/" + configFile)
		if err != nil {
			return fmt.Errorf("read embedded config: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
	}

	return nil
}

func loadEmbedded() (*Config, error) {
	data, err := defaultsFS.ReadFile("defaults/" + configFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded defaults: %w", err)
	}
	return parseConfigWithTracking(data)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user's config file
	if err != nil {
		return nil, err
	}
	return parseConfigWithTracking(data)
}

// parseConfigWithTracking parses YAML config and records which fields were set.
func parseConfigWithTracking(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	_, cfg.MaxIterationsSet = raw["max_iterations"]
	_, cfg.StagnationLimitSet = raw["stagnation_limit"]
	_, cfg.TimeoutSet = raw["timeout"]
	_, cfg.StreamingSet = raw["streaming"]

	return &cfg, nil
}

// applyEnv applies environment variables. They sit between the global and
// local files in precedence.
func (c *Config) applyEnv() {
	if n, ok := envInt("PROGRAMMATOR_MAX_ITERATIONS"); ok {
		c.MaxIterations = n
		c.MaxIterationsSet = true
		c.sources = append(c.sources, "env:PROGRAMMATOR_MAX_ITERATIONS")
	}

	if n, ok := envInt("PROGRAMMATOR_STAGNATION_LIMIT"); ok {
		c.StagnationLimit = n
		c.StagnationLimitSet = true
		c.sources = append(c.sources, "env:PROGRAMMATOR_STAGNATION_LIMIT")
	}

	if n, ok := envInt("PROGRAMMATOR_TIMEOUT"); ok {
		c.Timeout = n
		c.TimeoutSet = true
		c.sources = append(c.sources, "env:PROGRAMMATOR_TIMEOUT")
	}

	if v := os.Getenv("PROGRAMMATOR_CLAUDE_FLAGS"); v != "" {
		c.ClaudeFlags = v
		c.sources = append(c.sources, "env:PROGRAMMATOR_CLAUDE_FLAGS")
	}

	if v := os.Getenv("CLAUDE_CONFIG_DIR"); v != "" {
		c.ClaudeConfigDir = v
		c.sources = append(c.sources, "env:CLAUDE_CONFIG_DIR")
	}

	if v := os.Getenv("PROGRAMMATOR_TICKET_COMMAND"); v != "" {
		c.TicketCommand = v
		c.sources = append(c.sources, "env:PROGRAMMATOR_TICKET_COMMAND")
	}

	if v := os.Getenv("TICKETS_DIR"); v != "" {
		c.TicketsDir = v
		c.sources = append(c.sources, "env:TICKETS_DIR")
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// mergeFrom merges set or non-empty values from src into c.
func (c *Config) mergeFrom(src *Config) {
	if src.MaxIterationsSet {
		c.MaxIterations = src.MaxIterations
		c.MaxIterationsSet = true
	}
	if src.StagnationLimitSet {
		c.StagnationLimit = src.StagnationLimit
		c.StagnationLimitSet = true
	}
	if src.TimeoutSet {
		c.Timeout = src.Timeout
		c.TimeoutSet = true
	}
	if src.StreamingSet {
		c.Streaming = src.Streaming
		c.StreamingSet = true
	}
	if src.ClaudeFlags != "" {
		c.ClaudeFlags = src.ClaudeFlags
	}
	if src.ClaudeConfigDir != "" {
		c.ClaudeConfigDir = src.ClaudeConfigDir
	}
	if src.TicketCommand != "" {
		c.TicketCommand = src.TicketCommand
	}
	if src.TicketsDir != "" {
		c.TicketsDir = src.TicketsDir
	}
	if src.LogsDir != "" {
		c.LogsDir = src.LogsDir
	}
}

// CLIOverrides carries command line values. Zero values mean "not given".
type CLIOverrides struct {
	MaxIterations   int
	StagnationLimit int
	Timeout         int
	// Streaming is nil unless the flag was given.
	Streaming *bool
}

// ApplyCLIFlags applies CLI flag overrides, which have the highest precedence.
func (c *Config) ApplyCLIFlags(o CLIOverrides) {
	if o.MaxIterations > 0 {
		c.MaxIterations = o.MaxIterations
		c.MaxIterationsSet = true
		c.sources = append(c.sources, "cli:max-iterations")
	}
	if o.StagnationLimit > 0 {
		c.StagnationLimit = o.StagnationLimit
		c.StagnationLimitSet = true
		c.sources = append(c.sources, "cli:stagnation-limit")
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
		c.TimeoutSet = true
		c.sources = append(c.sources, "cli:timeout")
	}
	if o.Streaming != nil {
		c.Streaming = *o.Streaming
		c.StreamingSet = true
		c.sources = append(c.sources, "cli:streaming")
	}
}

// Validate rejects limits the loop cannot work with.
func (c *Config) Validate() error {
	var problems []string
	if c.MaxIterations <= 0 {
		problems = append(problems, fmt.Sprintf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.StagnationLimit <= 0 {
		problems = append(problems, fmt.Sprintf("stagnation_limit must be positive, got %d", c.StagnationLimit))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %d", c.Timeout))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ToSafetyConfig returns the immutable loop policy.
func (c *Config) ToSafetyConfig() safety.Config {
	return safety.Config{
		MaxIterations:   c.MaxIterations,
		StagnationLimit: c.StagnationLimit,
		Timeout:         c.Timeout,
		ClaudeFlags:     c.ClaudeFlags,
	}
}

// ClaudeFlagList splits ClaudeFlags into arguments.
func (c *Config) ClaudeFlagList() []string {
	return strings.Fields(c.ClaudeFlags)
}

// EffectiveLogsDir returns LogsDir or the default logs directory.
func (c *Config) EffectiveLogsDir() string {
	if c.LogsDir != "" {
		return expandHome(c.LogsDir)
	}
	return dirs.LogsDir()
}

// EffectiveTicketsDir returns TicketsDir or the default tickets directory.
func (c *Config) EffectiveTicketsDir() string {
	if c.TicketsDir != "" {
		return expandHome(c.TicketsDir)
	}
	return dirs.TicketsDir()
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
