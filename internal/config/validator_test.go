package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// fieldErrors returns the messages reported for field
func fieldErrors(errs []ValidationError, field string) []string {
	var msgs []string
	for _, err := range errs {
		if err.Field == field {
			msgs = append(msgs, err.Message)
		}
	}
	return msgs
}

func TestConfig_Validate_URLs(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		errorMsg string
	}{
		{"valid https", "https://api.github.com", ""},
		{"valid http with port", "http://localhost:8000", ""},
		{"enterprise path", "https://ghe.example.com/api/v3", ""},
		{"empty", "", "cannot be empty"},
		{"no scheme", "localhost:8000", "must use http or https"},
		{"ftp scheme", "ftp://example.com", "must use http or https"},
		{"missing host", "http://", "must include a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, field := range []string{"hosting.base_url", "agents.base_url"} {
				cfg := Default()
				if field == "hosting.base_url" {
					cfg.Hosting.BaseURL = tt.url
				} else {
					cfg.Agents.BaseURL = tt.url
				}

				msgs := fieldErrors(cfg.Validate(), field)
				if tt.errorMsg == "" {
					if len(msgs) != 0 {
						t.Errorf("%s=%q: unexpected errors %v", field, tt.url, msgs)
					}
					continue
				}
				if len(msgs) != 1 || msgs[0] != tt.errorMsg {
					t.Errorf("%s=%q: errors = %v, want %q", field, tt.url, msgs, tt.errorMsg)
				}
			}
		})
	}
}

func TestConfig_Validate_Agents(t *testing.T) {
	t.Run("empty user id", func(t *testing.T) {
		cfg := Default()
		cfg.Agents.UserID = "  "
		if msgs := fieldErrors(cfg.Validate(), "agents.user_id"); len(msgs) != 1 {
			t.Errorf("expected one user_id error, got %v", msgs)
		}
	})

	t.Run("negative timeout", func(t *testing.T) {
		cfg := Default()
		cfg.Agents.TimeoutSeconds = -1
		if msgs := fieldErrors(cfg.Validate(), "agents.timeout_seconds"); len(msgs) != 1 {
			t.Errorf("expected one timeout error, got %v", msgs)
		}
	})

	t.Run("zero timeout disables the bound", func(t *testing.T) {
		cfg := Default()
		cfg.Agents.TimeoutSeconds = 0
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})

	t.Run("empty app name", func(t *testing.T) {
		cfg := Default()
		cfg.Agents.Parser.AppName = ""
		msgs := fieldErrors(cfg.Validate(), "agents.parser.app_name")
		if len(msgs) != 1 || msgs[0] != "cannot be empty" {
			t.Errorf("errors = %v", msgs)
		}
	})

	t.Run("shared app names", func(t *testing.T) {
		cfg := Default()
		cfg.Agents.Codemod.AppName = cfg.Agents.Planner.AppName
		msgs := fieldErrors(cfg.Validate(), "agents.codemod.app_name")
		if len(msgs) != 1 || !strings.Contains(msgs[0], "agents.planner.app_name") {
			t.Errorf("errors = %v, want reference to planner", msgs)
		}
	})
}

func TestConfig_Validate_Tree(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		hasError bool
	}{
		{"minimum", 1, false},
		{"default", 10, false},
		{"maximum", 50, false},
		{"zero", 0, true},
		{"negative", -3, true},
		{"too deep", 51, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Tree.MaxDepth = tt.depth
			hasError := len(fieldErrors(cfg.Validate(), "tree.max_depth")) > 0
			if hasError != tt.hasError {
				t.Errorf("Validate() for max_depth=%d: hasError=%v, want %v", tt.depth, hasError, tt.hasError)
			}
		})
	}

	t.Run("extra manifest patterns", func(t *testing.T) {
		cfg := Default()
		cfg.Tree.ExtraManifests = []string{"**/*.csproj", "[unclosed"}
		errs := cfg.Validate()
		if len(fieldErrors(errs, "tree.extra_manifests[0]")) != 0 {
			t.Error("valid pattern should not be reported")
		}
		if len(fieldErrors(errs, "tree.extra_manifests[1]")) != 1 {
			t.Errorf("invalid pattern should be reported, got %v", errs)
		}
	})
}

func TestConfig_Validate_PR(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		hasError bool
	}{
		{"valid simple", "botdas", false},
		{"valid with hyphen", "Iron-Ham", false},
		{"valid with underscore", "my_prefix", false},
		{"valid alphanumeric", "deps123", false},
		{"empty prefix", "", true},
		{"starts with number", "123branch", true},
		{"contains slash", "my/branch", true},
		{"contains space", "my branch", true},
		{"contains dot", "my.branch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.PR.BranchPrefix = tt.prefix
			hasError := len(fieldErrors(cfg.Validate(), "pr.branch_prefix")) > 0
			if hasError != tt.hasError {
				t.Errorf("Validate() for prefix=%q: hasError=%v, want %v", tt.prefix, hasError, tt.hasError)
			}
		})
	}

	t.Run("prefix too long", func(t *testing.T) {
		cfg := Default()
		cfg.PR.BranchPrefix = strings.Repeat("a", 51)
		msgs := fieldErrors(cfg.Validate(), "pr.branch_prefix")
		if len(msgs) != 1 || !strings.Contains(msgs[0], "exceeds maximum length") {
			t.Errorf("errors = %v", msgs)
		}
	})

	docTests := []struct {
		path     string
		hasError bool
	}{
		{"UPGRADE_MIGRATION.md", false},
		{"docs/migrations/UPGRADE.md", false},
		{"", true},
		{"/etc/passwd", true},
		{"../outside.md", true},
		{"docs/../../outside.md", true},
	}
	for _, tt := range docTests {
		t.Run("migration doc "+tt.path, func(t *testing.T) {
			cfg := Default()
			cfg.PR.MigrationDocPath = tt.path
			hasError := len(fieldErrors(cfg.Validate(), "pr.migration_doc_path")) > 0
			if hasError != tt.hasError {
				t.Errorf("migration_doc_path=%q: hasError=%v, want %v", tt.path, hasError, tt.hasError)
			}
		})
	}

	t.Run("reviewer globs", func(t *testing.T) {
		cfg := Default()
		cfg.PR.Reviewers.ByPath = map[string][]string{
			"src/**":   {"frontend"},
			"[invalid": {"nobody"},
		}
		msgs := fieldErrors(cfg.Validate(), "pr.reviewers.by_path")
		if len(msgs) != 1 {
			t.Errorf("expected one invalid reviewer pattern, got %v", msgs)
		}
	})
}

func TestConfig_Validate_Dashboard(t *testing.T) {
	for _, n := range []int{0, -1, 33} {
		cfg := Default()
		cfg.Dashboard.MaxParallel = n
		if len(fieldErrors(cfg.Validate(), "dashboard.max_parallel")) != 1 {
			t.Errorf("max_parallel=%d should be rejected", n)
		}
	}
	for _, n := range []int{1, 32} {
		cfg := Default()
		cfg.Dashboard.MaxParallel = n
		if len(fieldErrors(cfg.Validate(), "dashboard.max_parallel")) != 0 {
			t.Errorf("max_parallel=%d should be accepted", n)
		}
	}
}

func TestConfig_Validate_Server(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Server.ReadTimeoutSeconds = -5
	errs := cfg.Validate()

	if len(fieldErrors(errs, "server.addr")) != 1 {
		t.Error("empty server.addr should be rejected")
	}
	if len(fieldErrors(errs, "server.read_timeout_seconds")) != 1 {
		t.Error("negative read timeout should be rejected")
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		level    string
		hasError bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"", false},
		{"verbose", true},
		{"INFO", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			hasError := len(fieldErrors(cfg.Validate(), "logging.level")) > 0
			if hasError != tt.hasError {
				t.Errorf("level=%q: hasError=%v, want %v", tt.level, hasError, tt.hasError)
			}
		})
	}
}

func TestValidLogLevels(t *testing.T) {
	levels := ValidLogLevels()
	expected := []string{"debug", "info", "warn", "error"}

	if len(levels) != len(expected) {
		t.Fatalf("ValidLogLevels() returned %d levels, want %d", len(levels), len(expected))
	}
	for i, level := range expected {
		if levels[i] != level {
			t.Errorf("ValidLogLevels()[%d] = %q, want %q", i, levels[i], level)
		}
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Tree.MaxDepth = 0
	cfg.PR.BranchPrefix = "1bad"
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}
