package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sghirate/SlackSwarmBot/internal/logging"
	"github.com/Sghirate/SlackSwarmBot/internal/output"
	"github.com/Sghirate/SlackSwarmBot/internal/relay"
	"github.com/Sghirate/SlackSwarmBot/internal/slack"
	"github.com/Sghirate/SlackSwarmBot/internal/store"
	"github.com/Sghirate/SlackSwarmBot/internal/swarm"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "swarmbot",
	Short: "Relay Swarm review activity into Slack threads",
	Long: `swarmbot listens for Helix Swarm activity events and relays them to
Slack, keeping every review's notifications in a single thread. It caches
thread handles and user identities in a local SQLite database.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/swarmbot/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "swarmbot")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SWARMBOT")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "swarmbot")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "swarmbot.db"))
	viper.SetDefault("listen", ":8389")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("slack.api_url", slack.DefaultAPIURL)
	viper.SetDefault("slack.token", "")
	viper.SetDefault("slack.channel", "")
	viper.SetDefault("swarm.host", "")
	viper.SetDefault("swarm.username", "")
	viper.SetDefault("swarm.ticket", "")
	viper.SetDefault("http.timeout", "30s")
	viper.SetDefault("http.insecure_skip_verify", false)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily - only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger builds the shared slog logger from configuration. Verbose mode
// forces debug level regardless of log_level.
func newLogger() *slog.Logger {
	level := logging.ParseLevel(viper.GetString("log_level"))
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level)
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// transportConfig assembles the outbound HTTP options from configuration,
// including per-host overrides under http.hosts.
func transportConfig() slack.TransportConfig {
	cfg := slack.TransportConfig{
		Global: slack.HTTPOptions{Timeout: viper.GetDuration("http.timeout")},
	}
	if viper.IsSet("http.insecure_skip_verify") && viper.GetBool("http.insecure_skip_verify") {
		skip := true
		cfg.Global.InsecureSkipVerify = &skip
	}

	hosts := viper.GetStringMap("http.hosts")
	if len(hosts) > 0 {
		cfg.Hosts = make(map[string]slack.HTTPOptions, len(hosts))
		for host := range hosts {
			prefix := "http.hosts." + host
			opts := slack.HTTPOptions{Timeout: viper.GetDuration(prefix + ".timeout")}
			if viper.IsSet(prefix + ".insecure_skip_verify") {
				skip := viper.GetBool(prefix + ".insecure_skip_verify")
				opts.InsecureSkipVerify = &skip
			}
			cfg.Hosts[host] = opts
		}
	}
	return cfg
}

// buildEngine wires the relay engine from configuration and the shared store.
func buildEngine(logger *slog.Logger) (*relay.Engine, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	host := viper.GetString("swarm.host")
	if host == "" {
		return nil, fmt.Errorf("swarm.host is not configured (run 'swarmbot config init')")
	}
	token := viper.GetString("slack.token")
	if token == "" {
		return nil, fmt.Errorf("slack.token is not configured")
	}
	channel := viper.GetString("slack.channel")
	if channel == "" {
		return nil, fmt.Errorf("slack.channel is not configured")
	}

	swarmClient := swarm.NewClient(swarm.Config{
		Host:     host,
		Username: viper.GetString("swarm.username"),
		Ticket:   viper.GetString("swarm.ticket"),
		Timeout:  viper.GetDuration("http.timeout"),
	}, logger)

	slackClient := slack.NewClient(slack.Config{
		APIURL:    viper.GetString("slack.api_url"),
		Token:     token,
		Channel:   channel,
		Transport: transportConfig(),
	}, logger)

	return relay.New(relay.Deps{
		Store:     s,
		Reviews:   swarmClient,
		Comments:  swarmClient,
		Users:     swarmClient,
		Chat:      slackClient,
		SwarmHost: host,
		Logger:    logger,
	}), nil
}
