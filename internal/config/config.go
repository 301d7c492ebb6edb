package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete botdas configuration
type Config struct {
	Hosting   HostingConfig   `mapstructure:"hosting"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Tree      TreeConfig      `mapstructure:"tree"`
	PR        PRConfig        `mapstructure:"pr"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Report    ReportConfig    `mapstructure:"report"`
}

// HostingConfig controls access to the hosting platform REST API
type HostingConfig struct {
	// BaseURL is the REST API root (default: "https://api.github.com").
	// Set to https://<host>/api/v3 for GitHub Enterprise.
	BaseURL string `mapstructure:"base_url"`
	// Token is a fallback credential used when a request does not carry one.
	// Usually supplied through BOTDAS_HOSTING_TOKEN rather than the config file.
	Token string `mapstructure:"token"`
	// UserAgent is sent on every request (default: "botdas")
	UserAgent string `mapstructure:"user_agent"`
	// TimeoutSeconds bounds each hosting API call (default: 30, 0 = no timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AgentsConfig controls the remote analysis agents
type AgentsConfig struct {
	// BaseURL is the agent server root serving /apps/... and /run
	BaseURL string `mapstructure:"base_url"`
	// UserID is the user identity sessions are created under (default: "botdas")
	UserID string `mapstructure:"user_id"`
	// TimeoutSeconds bounds a single stage call, session upsert and run included
	// (default: 300, 0 = no timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Planner, Parser and Codemod configure the three stages
	Planner StageConfig `mapstructure:"planner"`
	Parser  StageConfig `mapstructure:"parser"`
	Codemod StageConfig `mapstructure:"codemod"`
}

// StageConfig configures one agent stage
type StageConfig struct {
	// AppName is the agent application the stage talks to
	AppName string `mapstructure:"app_name"`
	// Instruction overrides the natural-language instruction sent with the inputs
	Instruction string `mapstructure:"instruction"`
}

// TreeConfig controls repository tree traversal
type TreeConfig struct {
	// MaxDepth is the deepest directory level traversed (default: 10)
	MaxDepth int `mapstructure:"max_depth"`
	// ExtraManifests are doublestar patterns matched against file paths in
	// addition to the built-in manifest allowlist (e.g. "**/*.csproj")
	ExtraManifests []string `mapstructure:"extra_manifests"`
}

// PRConfig controls pull request publication
type PRConfig struct {
	// BaseBranch is the branch PRs target; empty uses the repository's default branch
	BaseBranch string `mapstructure:"base_branch"`
	// BranchPrefix is prepended to upgrade branch names (default: "botdas")
	BranchPrefix string `mapstructure:"branch_prefix"`
	// Labels are applied to every upgrade PR
	Labels []string `mapstructure:"labels"`
	// Draft opens PRs as drafts
	Draft bool `mapstructure:"draft"`
	// MigrationDocPath is where the migration document is written (default: "UPGRADE_MIGRATION.md")
	MigrationDocPath string `mapstructure:"migration_doc_path"`
	// Reviewers configuration for automatic reviewer assignment
	Reviewers ReviewerConfig `mapstructure:"reviewers"`
}

// ReviewerConfig controls automatic reviewer assignment
type ReviewerConfig struct {
	// Default reviewers to always request
	Default []string `mapstructure:"default"`
	// ByPath maps file path glob patterns to reviewers
	ByPath map[string][]string `mapstructure:"by_path"`
}

// DashboardConfig controls multi-repository analysis
type DashboardConfig struct {
	// MaxParallel is the number of repositories analyzed concurrently (default: 4)
	MaxParallel int `mapstructure:"max_parallel"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `mapstructure:"addr"`
	// ReadTimeoutSeconds bounds reading a request (default: 30)
	ReadTimeoutSeconds int `mapstructure:"read_timeout_seconds"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the directory for botdas.log; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// ReportConfig controls run report persistence
type ReportConfig struct {
	// Dir is where run reports are written; empty disables persistence
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Hosting: HostingConfig{
			BaseURL:        "https://api.github.com",
			UserAgent:      "botdas",
			TimeoutSeconds: 30,
		},
		Agents: AgentsConfig{
			BaseURL:        "http://localhost:8000",
			UserID:         "botdas",
			TimeoutSeconds: 300,
			Planner:        StageConfig{AppName: "planner_botda"},
			Parser:         StageConfig{AppName: "parser_botda"},
			Codemod:        StageConfig{AppName: "codemod_botda"},
		},
		Tree: TreeConfig{
			MaxDepth:       10,
			ExtraManifests: []string{},
		},
		PR: PRConfig{
			BaseBranch:       "",
			BranchPrefix:     "botdas",
			Labels:           []string{"dependencies", "automated-upgrade", "botdas"},
			Draft:            false,
			MigrationDocPath: "UPGRADE_MIGRATION.md",
			Reviewers: ReviewerConfig{
				Default: []string{},
				ByPath:  map[string][]string{},
			},
		},
		Dashboard: DashboardConfig{
			MaxParallel: 4,
		},
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Report: ReportConfig{
			Dir: "",
		},
	}
}

// Timeout returns the hosting call timeout (0 means none)
func (c *HostingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-stage agent timeout (0 means none)
func (c *AgentsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReadTimeout returns the server read timeout
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Hosting defaults
	viper.SetDefault("hosting.base_url", defaults.Hosting.BaseURL)
	viper.SetDefault("hosting.token", defaults.Hosting.Token)
	viper.SetDefault("hosting.user_agent", defaults.Hosting.UserAgent)
	viper.SetDefault("hosting.timeout_seconds", defaults.Hosting.TimeoutSeconds)

	// Agent defaults
	viper.SetDefault("agents.base_url", defaults.Agents.BaseURL)
	viper.SetDefault("agents.user_id", defaults.Agents.UserID)
	viper.SetDefault("agents.timeout_seconds", defaults.Agents.TimeoutSeconds)
	viper.SetDefault("agents.planner.app_name", defaults.Agents.Planner.AppName)
	viper.SetDefault("agents.planner.instruction", defaults.Agents.Planner.Instruction)
	viper.SetDefault("agents.parser.app_name", defaults.Agents.Parser.AppName)
	viper.SetDefault("agents.parser.instruction", defaults.Agents.Parser.Instruction)
	viper.SetDefault("agents.codemod.app_name", defaults.Agents.Codemod.AppName)
	viper.SetDefault("agents.codemod.instruction", defaults.Agents.Codemod.Instruction)

	// Tree defaults
	viper.SetDefault("tree.max_depth", defaults.Tree.MaxDepth)
	viper.SetDefault("tree.extra_manifests", defaults.Tree.ExtraManifests)

	// PR defaults
	viper.SetDefault("pr.base_branch", defaults.PR.BaseBranch)
	viper.SetDefault("pr.branch_prefix", defaults.PR.BranchPrefix)
	viper.SetDefault("pr.labels", defaults.PR.Labels)
	viper.SetDefault("pr.draft", defaults.PR.Draft)
	viper.SetDefault("pr.migration_doc_path", defaults.PR.MigrationDocPath)
	viper.SetDefault("pr.reviewers.default", defaults.PR.Reviewers.Default)
	viper.SetDefault("pr.reviewers.by_path", defaults.PR.Reviewers.ByPath)

	// Dashboard defaults
	viper.SetDefault("dashboard.max_parallel", defaults.Dashboard.MaxParallel)

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.read_timeout_seconds", defaults.Server.ReadTimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Report defaults
	viper.SetDefault("report.dir", defaults.Report.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "botdas")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botdas"
	}
	return filepath.Join(home, ".config", "botdas")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
