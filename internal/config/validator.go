package config

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "agents.base_url")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// Bounds for numeric settings
const (
	maxTreeDepth          = 50
	maxDashboardParallel  = 32
	maxBranchPrefixLength = 50
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateHosting()...)
	errors = append(errors, c.validateAgents()...)
	errors = append(errors, c.validateTree()...)
	errors = append(errors, c.validatePR()...)
	errors = append(errors, c.validateDashboard()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateHosting validates the HostingConfig
func (c *Config) validateHosting() []ValidationError {
	var errors []ValidationError

	if msg := checkHTTPURL(c.Hosting.BaseURL); msg != "" {
		errors = append(errors, ValidationError{
			Field:   "hosting.base_url",
			Value:   c.Hosting.BaseURL,
			Message: msg,
		})
	}

	if c.Hosting.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "hosting.timeout_seconds",
			Value:   c.Hosting.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateAgents validates the AgentsConfig
func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	if msg := checkHTTPURL(c.Agents.BaseURL); msg != "" {
		errors = append(errors, ValidationError{
			Field:   "agents.base_url",
			Value:   c.Agents.BaseURL,
			Message: msg,
		})
	}

	if strings.TrimSpace(c.Agents.UserID) == "" {
		errors = append(errors, ValidationError{
			Field:   "agents.user_id",
			Value:   c.Agents.UserID,
			Message: "cannot be empty",
		})
	}

	if c.Agents.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "agents.timeout_seconds",
			Value:   c.Agents.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	// Each stage needs its own app namespace so session state does not bleed.
	stages := []struct {
		field string
		app   string
	}{
		{"agents.planner.app_name", c.Agents.Planner.AppName},
		{"agents.parser.app_name", c.Agents.Parser.AppName},
		{"agents.codemod.app_name", c.Agents.Codemod.AppName},
	}
	seen := make(map[string]string)
	for _, s := range stages {
		if s.app == "" {
			errors = append(errors, ValidationError{
				Field:   s.field,
				Value:   s.app,
				Message: "cannot be empty",
			})
			continue
		}
		if prev, ok := seen[s.app]; ok {
			errors = append(errors, ValidationError{
				Field:   s.field,
				Value:   s.app,
				Message: fmt.Sprintf("must differ from %s", prev),
			})
			continue
		}
		seen[s.app] = s.field
	}

	return errors
}

// validateTree validates the TreeConfig
func (c *Config) validateTree() []ValidationError {
	var errors []ValidationError

	if c.Tree.MaxDepth < 1 || c.Tree.MaxDepth > maxTreeDepth {
		errors = append(errors, ValidationError{
			Field:   "tree.max_depth",
			Value:   c.Tree.MaxDepth,
			Message: fmt.Sprintf("must be between 1 and %d", maxTreeDepth),
		})
	}

	for i, pattern := range c.Tree.ExtraManifests {
		if !doublestar.ValidatePattern(pattern) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("tree.extra_manifests[%d]", i),
				Value:   pattern,
				Message: "is not a valid glob pattern",
			})
		}
	}

	return errors
}

// validatePR validates the PRConfig
func (c *Config) validatePR() []ValidationError {
	var errors []ValidationError

	if c.PR.BranchPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "pr.branch_prefix",
			Value:   c.PR.BranchPrefix,
			Message: "cannot be empty",
		})
	} else if !branchPrefixRegex.MatchString(c.PR.BranchPrefix) {
		errors = append(errors, ValidationError{
			Field:   "pr.branch_prefix",
			Value:   c.PR.BranchPrefix,
			Message: "must start with a letter and contain only alphanumeric characters, hyphens, or underscores",
		})
	}
	if len(c.PR.BranchPrefix) > maxBranchPrefixLength {
		errors = append(errors, ValidationError{
			Field:   "pr.branch_prefix",
			Value:   c.PR.BranchPrefix,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", maxBranchPrefixLength),
		})
	}

	doc := c.PR.MigrationDocPath
	switch {
	case strings.TrimSpace(doc) == "":
		errors = append(errors, ValidationError{
			Field:   "pr.migration_doc_path",
			Value:   doc,
			Message: "cannot be empty",
		})
	case strings.HasPrefix(doc, "/") || strings.HasPrefix(path.Clean(doc), ".."):
		errors = append(errors, ValidationError{
			Field:   "pr.migration_doc_path",
			Value:   doc,
			Message: "must be a path inside the repository",
		})
	}

	for pattern := range c.PR.Reviewers.ByPath {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   "pr.reviewers.by_path",
				Value:   pattern,
				Message: "is not a valid glob pattern",
			})
		}
	}

	return errors
}

// validateDashboard validates the DashboardConfig
func (c *Config) validateDashboard() []ValidationError {
	var errors []ValidationError

	if c.Dashboard.MaxParallel < 1 || c.Dashboard.MaxParallel > maxDashboardParallel {
		errors = append(errors, ValidationError{
			Field:   "dashboard.max_parallel",
			Value:   c.Dashboard.MaxParallel,
			Message: fmt.Sprintf("must be between 1 and %d", maxDashboardParallel),
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Server.Addr) == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "cannot be empty",
		})
	}
	if c.Server.ReadTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.read_timeout_seconds",
			Value:   c.Server.ReadTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// checkHTTPURL returns a validation message for a malformed base URL, or "".
func checkHTTPURL(raw string) string {
	if raw == "" {
		return "cannot be empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "must use http or https"
	}
	if u.Host == "" {
		return "must include a host"
	}
	return ""
}
