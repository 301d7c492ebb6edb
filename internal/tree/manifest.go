package tree

import (
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// manifestNames are file names whose content is always fetched.
var manifestNames = map[string]bool{
	// JavaScript / TypeScript
	"package.json":        true,
	"package-lock.json":   true,
	"npm-shrinkwrap.json": true,
	"yarn.lock":           true,
	"pnpm-lock.yaml":      true,
	"pnpm-workspace.yaml": true,
	"bun.lockb":           true,
	"lerna.json":          true,
	"tsconfig.json":       true,
	"next.config.js":      true,
	"next.config.mjs":     true,
	"vite.config.ts":      true,
	"vite.config.js":      true,
	"webpack.config.js":   true,
	".nvmrc":              true,
	".npmrc":              true,

	// Go
	"go.mod":  true,
	"go.sum":  true,
	"go.work": true,

	// Rust
	"Cargo.toml": true,
	"Cargo.lock": true,

	// Python
	"requirements.txt": true,
	"Pipfile":          true,
	"Pipfile.lock":     true,
	"pyproject.toml":   true,
	"poetry.lock":      true,
	"setup.py":         true,
	"setup.cfg":        true,

	// Ruby
	"Gemfile":      true,
	"Gemfile.lock": true,

	// PHP
	"composer.json": true,
	"composer.lock": true,

	// JVM
	"pom.xml":             true,
	"build.gradle":        true,
	"build.gradle.kts":    true,
	"settings.gradle":     true,
	"settings.gradle.kts": true,
	"gradle.properties":   true,

	// Containers and CI
	"Dockerfile":          true,
	"docker-compose.yml":  true,
	"docker-compose.yaml": true,
	".tool-versions":      true,
}

// manifestPatterns are doublestar patterns matched against the full path.
var manifestPatterns = []string{
	"**/requirements*.txt",
	"**/*.csproj",
	"**/*.gemspec",
	"**/Dockerfile.*",
}

// Matcher decides which files are dependency manifests.
type Matcher struct {
	patterns []string
}

// NewMatcher returns a Matcher using the built-in allowlist plus extra
// doublestar patterns. Invalid patterns are ignored.
func NewMatcher(extra ...string) *Matcher {
	patterns := append([]string(nil), manifestPatterns...)
	for _, p := range extra {
		if doublestar.ValidatePattern(p) {
			patterns = append(patterns, p)
		}
	}
	return &Matcher{patterns: patterns}
}

// IsManifest reports whether the file at filePath should have its content
// fetched.
func (m *Matcher) IsManifest(filePath string) bool {
	if manifestNames[path.Base(filePath)] {
		return true
	}
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, filePath); ok {
			return true
		}
	}
	return false
}
