// Package config loads ohmycomment configuration: defaults, then an
// optional YAML file, then OHMYCOMMENT_* environment variables (a .env file
// in the working directory is loaded first). Command-line flags are applied
// last by the CLI.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/v0xg/ohmycomment/internal/ai"
	"github.com/v0xg/ohmycomment/internal/browser"
	"github.com/v0xg/ohmycomment/internal/extractor"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OHMYCOMMENT_"

// Config is the top-level configuration.
type Config struct {
	AI ai.Options `yaml:"ai"`
	// APIKey is used when the settings store holds none.
	APIKey       string `yaml:"api_key"`
	SystemPrompt string `yaml:"system_prompt"`

	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Extractor          extractor.Options `yaml:"extractor"`
	RichEditorPrefixes []string          `yaml:"rich_editor_prefixes"`
	Browser            browser.Options   `yaml:"browser"`
	Server             ServerConfig      `yaml:"server"`
	Debug              DebugConfig       `yaml:"debug"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	Token  string `yaml:"token"`
	// RemoteURL makes browser sessions send requests to a running server
	// instead of an in-process background.
	RemoteURL string `yaml:"remote_url"`
}

// DebugConfig controls the session debug log.
type DebugConfig struct {
	Capacity       int    `yaml:"capacity"`
	Dir            string `yaml:"dir"`
	ThumbnailWidth uint   `yaml:"thumbnail_width"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AI:                 ai.Options{Provider: "openai", MaxTokens: 1024},
		SystemPrompt:       ai.DefaultSystemPrompt,
		DBPath:             defaultDBPath(),
		LogLevel:           "info",
		Extractor:          extractor.DefaultOptions(),
		RichEditorPrefixes: []string{"shreddit-"},
		Browser: browser.Options{
			Width:   1280,
			Height:  900,
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{Listen: "127.0.0.1:7878"},
		Debug:  DebugConfig{Capacity: 100, ThumbnailWidth: 320},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ohmycomment.db"
	}
	return filepath.Join(dir, "ohmycomment", "settings.db")
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file.
func Load(path string) (Config, error) {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// ResolveAPIKey fills APIKey from the environment for the configured
// provider. Call it once the provider is final, after flags are applied.
// The generic OHMYCOMMENT_API_KEY wins over the provider's own variable,
// which wins over the config file.
func (c *Config) ResolveAPIKey() {
	c.resolveAPIKey(os.Getenv)
}

func (c *Config) resolveAPIKey(getenv func(string) string) {
	names := []string{EnvPrefix + "API_KEY", "OPENAI_API_KEY"}
	switch c.AI.Provider {
	case "claude", "anthropic":
		names[1] = "ANTHROPIC_API_KEY"
	}
	for _, name := range names {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			c.APIKey = v
			return
		}
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(dst *string, names ...string) {
		for _, name := range names {
			if v := strings.TrimSpace(getenv(name)); v != "" {
				*dst = v
				return
			}
		}
	}
	boolean := func(dst *bool, name string) {
		if v, err := strconv.ParseBool(getenv(name)); err == nil {
			*dst = v
		}
	}

	str(&c.AI.Provider, EnvPrefix+"PROVIDER")
	str(&c.AI.Model, EnvPrefix+"MODEL")
	str(&c.AI.BaseURL, EnvPrefix+"BASE_URL")
	if v, err := strconv.Atoi(getenv(EnvPrefix + "MAX_TOKENS")); err == nil && v > 0 {
		c.AI.MaxTokens = v
	}

	str(&c.SystemPrompt, EnvPrefix+"SYSTEM_PROMPT")
	str(&c.DBPath, EnvPrefix+"DB")
	str(&c.LogLevel, EnvPrefix+"LOG_LEVEL")

	str(&c.Browser.ControlURL, EnvPrefix+"CHROME_URL")
	str(&c.Browser.Bin, EnvPrefix+"CHROME_BIN")
	str(&c.Browser.ProfileDir, EnvPrefix+"PROFILE")
	boolean(&c.Browser.Headless, EnvPrefix+"HEADLESS")
	boolean(&c.Browser.Stealth, EnvPrefix+"STEALTH")

	str(&c.Server.Listen, EnvPrefix+"LISTEN")
	str(&c.Server.Token, EnvPrefix+"TOKEN")
	str(&c.Server.RemoteURL, EnvPrefix+"REMOTE_URL")

	str(&c.Debug.Dir, EnvPrefix+"DEBUG_DIR")
}
