package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/botdas/internal/agent"
	"github.com/Iron-Ham/botdas/internal/pipeline"
)

// DefaultMigrationDocPath is where the migration document is written.
const DefaultMigrationDocPath = "UPGRADE_MIGRATION.md"

// MaxBodyLength is the longest pull request body GitHub accepts, in characters.
const MaxBodyLength = 65536

// maxStageJSON bounds each stage output embedded in the pull request body.
// The migration document keeps the full text.
const maxStageJSON = 12000

const truncatedNote = "\n... truncated, the full output is in the migration document"

// TemplateData contains all data available to the PR body and migration
// document templates.
type TemplateData struct {
	// Package is the upgraded package
	Package string
	// From is the version before the upgrade
	From string
	// To is the target version
	To string
	// Branch is the upgrade branch
	Branch string
	// RunID identifies the upgrade run
	RunID string
	// BaseBranch is the branch the PR targets
	BaseBranch string
	// Files are the successful writes, excluding the migration document
	Files []FileChange
	// FailedFiles are paths that could not be written
	FailedFiles []string
	// Updates are companion upgrades the planner recommended
	Updates []pipeline.Update
	// Summary is the parser's summary
	Summary string
	// BreakingChanges are reported by the parser
	BreakingChanges []string
	// PlannerJSON, ParserJSON and CodemodJSON are the stage outputs
	PlannerJSON string
	ParserJSON  string
	CodemodJSON string
	// FrontMatter is the YAML header of the migration document
	FrontMatter string
}

// Title returns the pull request title for an upgrade.
func Title(pkg, from, to string) string {
	if from == "" {
		from = "unknown"
	}
	return fmt.Sprintf("chore(deps): upgrade %s from %s to %s", pkg, from, to)
}

const bodyTemplate = `## Dependency upgrade

Upgrades ` + "`{{.Package}}`" + ` from {{.From}} to {{.To}}.
{{- if .Summary}}

{{.Summary}}
{{- end}}

### Files changed
{{range .Files}}
- ` + "`{{.Path}}`" + `{{if .Message}}: {{.Message}}{{end}}
{{- else}}
- none
{{- end}}
{{- if .FailedFiles}}

### Files not written
{{range .FailedFiles}}
- ` + "`{{.}}`" + `
{{- end}}
{{- end}}
{{- if .Updates}}

### Related updates
{{range .Updates}}
- ` + "`{{.Package}}`" + ` {{.From}} → {{.To}}{{if .Reason}} ({{.Reason}}){{end}}
{{- end}}
{{- end}}
{{- if .BreakingChanges}}

### Breaking changes
{{range .BreakingChanges}}
- {{.}}
{{- end}}
{{- end}}

See the migration document on this branch for rollback steps.

<details><summary>Planner output</summary>

~~~json
{{.PlannerJSON}}
~~~
</details>

<details><summary>Parser output</summary>

~~~json
{{.ParserJSON}}
~~~
</details>

<details><summary>Codemod output</summary>

~~~json
{{.CodemodJSON}}
~~~
</details>
`

const migrationTemplate = `---
{{.FrontMatter}}---

# Migrating ` + "`{{.Package}}`" + ` from {{.From}} to {{.To}}
{{- if .Summary}}

{{.Summary}}
{{- end}}

## Changes
{{range .Files}}
- ` + "`{{.Path}}`" + `
{{- else}}
- none
{{- end}}
{{- if .FailedFiles}}

The following files could not be written and need manual changes:
{{range .FailedFiles}}
- ` + "`{{.}}`" + `
{{- end}}
{{- end}}

## Planner output

~~~json
{{.PlannerJSON}}
~~~

## Parser output

~~~json
{{.ParserJSON}}
~~~

## Codemod output

~~~json
{{.CodemodJSON}}
~~~

## Rollback

1. Close the pull request and delete the ` + "`{{.Branch}}`" + ` branch.
2. If it was already merged, revert the merge commit on ` + "`{{.BaseBranch}}`" + `.
3. Reinstall dependencies so the lockfile matches ` + "`{{.Package}}`" + ` {{.From}} again.
`

// RenderTemplate renders tmplStr with the given data.
func RenderTemplate(tmplStr string, data TemplateData) (string, error) {
	tmpl, err := template.New("publish").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// RenderBody renders the pull request body. Stage outputs are clipped and
// the whole body is kept within MaxBodyLength.
func RenderBody(data TemplateData) (string, error) {
	data.PlannerJSON = clip(data.PlannerJSON, maxStageJSON)
	data.ParserJSON = clip(data.ParserJSON, maxStageJSON)
	data.CodemodJSON = clip(data.CodemodJSON, maxStageJSON)

	body, err := RenderTemplate(bodyTemplate, data)
	if err != nil {
		return "", err
	}
	return clip(body, MaxBodyLength), nil
}

// clip cuts s to at most limit characters, counting the truncation note.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(truncatedNote)
	return string([]rune(s)[:keep]) + truncatedNote
}

type frontMatter struct {
	Package   string   `yaml:"package"`
	From      string   `yaml:"from"`
	To        string   `yaml:"to"`
	Branch    string   `yaml:"branch"`
	RunID     string   `yaml:"run_id,omitempty"`
	Generated string   `yaml:"generated"`
	Files     []string `yaml:"files"`
}

// RenderMigrationDoc renders the migration document with YAML front matter.
func RenderMigrationDoc(data TemplateData, now time.Time) (string, error) {
	fm, err := yaml.Marshal(frontMatter{
		Package:   data.Package,
		From:      data.From,
		To:        data.To,
		Branch:    data.Branch,
		RunID:     data.RunID,
		Generated: now.UTC().Format(time.RFC3339),
		Files:     ChangedPaths(data.Files),
	})
	if err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	data.FrontMatter = string(fm)
	return RenderTemplate(migrationTemplate, data)
}

// stageJSON renders a stage response for a template.
func stageJSON(resp *agent.Response) string {
	if resp == nil {
		return "null"
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Sprintf("%q", err.Error())
	}
	return string(out)
}

// ResolveReviewers determines reviewers based on changed files and config.
// The result is sorted and free of duplicates.
func ResolveReviewers(changedFiles []string, defaultReviewers []string, byPath map[string][]string) []string {
	reviewerSet := make(map[string]bool)

	for _, r := range defaultReviewers {
		if r = normalizeReviewer(r); r != "" {
			reviewerSet[r] = true
		}
	}

	for pattern, reviewers := range byPath {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			continue
		}

		for _, file := range changedFiles {
			if g.Match(file) {
				for _, r := range reviewers {
					if r = normalizeReviewer(r); r != "" {
						reviewerSet[r] = true
					}
				}
				break
			}
		}
	}

	result := make([]string, 0, len(reviewerSet))
	for r := range reviewerSet {
		result = append(result, r)
	}
	sort.Strings(result)
	return result
}

// normalizeReviewer removes the @ prefix from reviewer handles
func normalizeReviewer(reviewer string) string {
	return strings.TrimPrefix(strings.TrimSpace(reviewer), "@")
}
