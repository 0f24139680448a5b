package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "swarmbot"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage swarmbot configuration.

Running bare 'swarmbot config' is the same as 'swarmbot config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# swarmbot configuration
# See: swarmbot config show (for effective values and sources)

# State/data directory (default: ~/.config/swarmbot)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/swarmbot/swarmbot.db)
# db_path: {{ .DBPath }}

# Intake server listen address (default: ":8389")
# listen: "{{ .Listen }}"

# Log level: debug, info, warn, error (default: "info")
# log_level: "{{ .LogLevel }}"

# Slack
slack:
  # Bot token used for chat.postMessage / chat.update / users.lookupByEmail
  token: "{{ .SlackToken }}"

  # Channel where review threads live
  channel: "{{ .SlackChannel }}"

# Helix Swarm
swarm:
  # Swarm base URL, also used for review links in notifications
  host: "{{ .SwarmHost }}"

  # Credentials for the Swarm REST API
  username: "{{ .SwarmUsername }}"
  ticket: "{{ .SwarmTicket }}"

# Outbound HTTP
http:
  # Request timeout (default: 30s)
  timeout: "{{ .HTTPTimeout }}"

  # Disable TLS peer verification. Logged loudly when enabled; leave off
  # unless an internal endpoint forces it.
  insecure_skip_verify: {{ .HTTPInsecure }}

  # Per-host overrides, keyed by hostname:
  # hosts:
  #   slack.example.internal:
  #     timeout: "10s"
  #     insecure_skip_verify: true
`

type configTemplateData struct {
	StateDir      string
	DBPath        string
	Listen        string
	LogLevel      string
	SlackToken    string
	SlackChannel  string
	SwarmHost     string
	SwarmUsername string
	SwarmTicket   string
	HTTPTimeout   string
	HTTPInsecure  bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:      viper.GetString("state_dir"),
		DBPath:        viper.GetString("db_path"),
		Listen:        viper.GetString("listen"),
		LogLevel:      viper.GetString("log_level"),
		SlackToken:    viper.GetString("slack.token"),
		SlackChannel:  viper.GetString("slack.channel"),
		SwarmHost:     viper.GetString("swarm.host"),
		SwarmUsername: viper.GetString("swarm.username"),
		SwarmTicket:   viper.GetString("swarm.ticket"),
		HTTPTimeout:   viper.GetString("http.timeout"),
		HTTPInsecure:  viper.GetBool("http.insecure_skip_verify"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "SWARMBOT_STATE_DIR"},
	{Key: "db_path", EnvVar: "SWARMBOT_DB_PATH"},
	{Key: "listen", EnvVar: "SWARMBOT_LISTEN"},
	{Key: "log_level", EnvVar: "SWARMBOT_LOG_LEVEL"},
	{Key: "slack.channel", EnvVar: "SWARMBOT_SLACK_CHANNEL"},
	{Key: "swarm.host", EnvVar: "SWARMBOT_SWARM_HOST"},
	{Key: "swarm.username", EnvVar: "SWARMBOT_SWARM_USERNAME"},
	{Key: "http.timeout", EnvVar: "SWARMBOT_HTTP_TIMEOUT"},
	{Key: "http.insecure_skip_verify", EnvVar: "SWARMBOT_HTTP_INSECURE_SKIP_VERIFY"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, point it at your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'swarmbot config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
