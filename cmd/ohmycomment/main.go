package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/v0xg/ohmycomment/internal/ai"
	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/config"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/logging"
	"github.com/v0xg/ohmycomment/internal/settings"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	verbose    bool
	provider   string
	model      string
	baseURL    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ohmycomment",
		Short: "Draft comments and replies in any web page with an LLM",
		Long: `ohmycomment attaches to a Chromium tab, puts a button next to the comment
box you are typing in, and fills it with a reply drafted from the page around it.

Example:
  ohmycomment key set sk-...
  ohmycomment persona add "Friendly" "Be warm and concise."
  ohmycomment run "https://news.ycombinator.com/item?id=1"`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ohmycomment.yaml", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Settings database path (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider: openai, ark, claude (default: from config or openai)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Specific model override")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Completion API base URL (OpenAI-compatible endpoints such as Ark)")

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newExtractCmd(),
		newPersonaCmd(),
		newHostCmd(),
		newKeyCmd(),
		newUsageCmd(),
		newThemeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies the
// persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if flags.Changed("provider") {
		cfg.AI.Provider = provider
	}
	if flags.Changed("model") {
		cfg.AI.Model = model
	}
	if flags.Changed("base-url") {
		cfg.AI.BaseURL = baseURL
	}
	cfg.ResolveAPIKey()
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, true)
}

func openStore(cfg config.Config, log zerolog.Logger) (*settings.Store, error) {
	store, err := settings.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return store, nil
}

// newBackground wires the in-process background service.
func newBackground(cfg config.Config, store *settings.Store, debug *debuglog.Log, log zerolog.Logger) *background.Service {
	opts := cfg.AI
	svc := background.NewService(store, func(apiKey string) (ai.Provider, error) {
		return ai.NewProvider(opts, apiKey)
	}, debug, log)
	svc.FallbackAPIKey = cfg.APIKey
	return svc
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
