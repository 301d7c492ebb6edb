package publish

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/tree"
)

// FileChange is a proposed file write.
type FileChange = pipeline.FileChange

// ManifestPath is the manifest synthesized when the codemod proposes nothing.
const ManifestPath = "package.json"

// Changes returns the writes for an upgrade. Codemod files with both a path
// and content are used as they are, with the message defaulted to
// "Update <path>". Without any, exactly one package.json change is
// synthesized naming the target at its version: the repository's root
// manifest is rewritten when the tree carries it, otherwise a minimal
// manifest is produced.
func Changes(codemod *pipeline.CodemodResult, target pipeline.Target, root *tree.RepositoryNode, repoName string) []FileChange {
	if files := codemod.UsableFiles(); len(files) > 0 {
		changes := make([]FileChange, 0, len(files))
		for _, f := range files {
			f.Path = strings.TrimPrefix(strings.TrimSpace(f.Path), "/")
			if strings.TrimSpace(f.Message) == "" {
				f.Message = "Update " + f.Path
			}
			changes = append(changes, f)
		}
		return changes
	}

	var existing string
	if root != nil {
		if entry, ok := root.File(ManifestPath); ok && entry.Content != nil {
			existing = *entry.Content
		}
	}

	return []FileChange{{
		Path:    ManifestPath,
		Content: SynthesizeManifest(existing, target.Package, target.Version(), repoName),
		Message: fmt.Sprintf("chore(deps): upgrade %s to %s", target.Package, target.Version()),
	}}
}

// SynthesizeManifest returns a package.json naming pkg at version.
// When existing is a manifest that already lists pkg, its entries are
// rewritten in place keeping the range operator and formatting. When it
// does not list pkg, the package is added to dependencies. An empty or
// unparsable existing manifest yields a minimal one.
func SynthesizeManifest(existing, pkg, version, name string) string {
	if strings.TrimSpace(existing) != "" {
		if updated, ok := rewriteEntry(existing, pkg, version); ok {
			return updated
		}
		if updated, ok := addDependency(existing, pkg, version); ok {
			return updated
		}
	}
	return minimalManifest(name, pkg, version)
}

var dependencySection = regexp.MustCompile(`"(?:dependencies|devDependencies|peerDependencies|optionalDependencies)"\s*:\s*\{`)

// rewriteEntry replaces the version of pkg in every dependency section.
func rewriteEntry(manifest, pkg, version string) (string, bool) {
	entry := regexp.MustCompile(`("` + regexp.QuoteMeta(pkg) + `"\s*:\s*")([\^~]?)[^"]*(")`)
	replacement := "${1}${2}" + escapeReplacement(version) + "${3}"
	if strings.HasPrefix(version, "^") || strings.HasPrefix(version, "~") {
		replacement = "${1}" + escapeReplacement(version) + "${3}"
	}

	var b strings.Builder
	found := false
	last := 0
	for _, loc := range dependencySection.FindAllStringIndex(manifest, -1) {
		end := strings.IndexByte(manifest[loc[1]:], '}')
		if end < 0 {
			continue
		}
		end += loc[1]
		section := manifest[loc[1]:end]
		if !entry.MatchString(section) {
			continue
		}
		found = true
		b.WriteString(manifest[last:loc[1]])
		b.WriteString(entry.ReplaceAllString(section, replacement))
		last = end
	}
	if !found {
		return "", false
	}
	b.WriteString(manifest[last:])
	return b.String(), true
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// addDependency inserts pkg into the dependencies object. Keys are
// re-sorted since the manifest is re-encoded.
func addDependency(manifest, pkg, version string) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(manifest), &doc); err != nil || doc == nil {
		return "", false
	}
	deps, ok := doc["dependencies"].(map[string]any)
	if !ok {
		deps = make(map[string]any)
	}
	deps[pkg] = version
	doc["dependencies"] = deps

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", false
	}
	return string(out) + "\n", true
}

type manifest struct {
	Name         string            `json:"name,omitempty"`
	Private      bool              `json:"private"`
	Dependencies map[string]string `json:"dependencies"`
}

func minimalManifest(name, pkg, version string) string {
	out, _ := json.MarshalIndent(manifest{
		Name:         name,
		Private:      true,
		Dependencies: map[string]string{pkg: version},
	}, "", "  ")
	return string(out) + "\n"
}

// ChangedPaths returns the paths of changes in order.
func ChangedPaths(changes []FileChange) []string {
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return paths
}
