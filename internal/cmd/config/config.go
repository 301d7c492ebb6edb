// Package config provides CLI commands for inspecting botdas configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/botdas/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View botdas configuration",
	Long: `View botdas configuration.

Without arguments, displays the current configuration.
Use 'config init' to create a config file with every option.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/botdas/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// secretKeys are masked by 'config show'.
var secretKeys = map[string]bool{
	"hosting.token": true,
}

// Settings returns the effective settings as nested maps with secrets masked.
func Settings() map[string]any {
	settings := viper.AllSettings()
	for key := range secretKeys {
		maskKey(settings, strings.Split(key, "."))
	}
	return settings
}

func maskKey(settings map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	v, ok := settings[path[0]]
	if !ok {
		return
	}
	if len(path) == 1 {
		if s, ok := v.(string); ok && s != "" {
			settings[path[0]] = "********"
		}
		return
	}
	if child, ok := v.(map[string]any); ok {
		maskKey(child, path[1:])
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	if _, err := appconfig.Load(); err != nil {
		fmt.Fprintf(out, "# Warning: %v\n", err)
	}

	data, err := yaml.Marshal(Settings())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/botdas/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: BOTDAS_* (e.g., BOTDAS_HOSTING_TOKEN, BOTDAS_AGENTS_BASE_URL)")

	return nil
}

const defaultConfigContent = `# Botdas Configuration

# Hosting platform REST API
hosting:
  base_url: https://api.github.com
  # Fallback token; prefer BOTDAS_HOSTING_TOKEN
  token: ""
  user_agent: botdas
  timeout_seconds: 30

# Remote analysis agents
agents:
  base_url: http://localhost:8000
  user_id: botdas
  # Bounds each stage call (0 = no timeout)
  timeout_seconds: 300
  planner:
    app_name: planner_botda
  parser:
    app_name: parser_botda
  codemod:
    app_name: codemod_botda

# Repository traversal
tree:
  max_depth: 10
  # Extra manifest patterns, e.g. "**/*.csproj"
  extra_manifests: []

# Pull requests
pr:
  # Empty targets the repository's default branch
  base_branch: ""
  branch_prefix: botdas
  labels: [dependencies, automated-upgrade, botdas]
  draft: false
  migration_doc_path: UPGRADE_MIGRATION.md
  reviewers:
    default: []
    by_path: {}

dashboard:
  max_parallel: 4

server:
  addr: ":8080"
  read_timeout_seconds: 30

logging:
  # debug, info, warn, error
  level: info
  # Empty logs to stderr
  dir: ""

report:
  # Empty disables run reports
  dir: ""
`
