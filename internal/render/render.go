// Package render formats upgrade results, dashboards and repository trees
// for the terminal.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	ltree "github.com/charmbracelet/lipgloss/tree"

	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/tree"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

// maxDetailWidth bounds the dashboard detail column.
const maxDetailWidth = 72

// Renderer formats results as text.
type Renderer struct {
	s styles
}

// New creates a Renderer. Pass styled=false when output is not a terminal.
func New(styled bool) *Renderer {
	return &Renderer{s: newStyles(styled)}
}

// Status classifies an upgrade response.
func Status(resp *upgrade.Response) string {
	switch {
	case resp == nil:
		return StatusFailed
	case resp.PR != nil:
		return StatusPublished
	case resp.PublishError != "":
		return StatusPublishFailed
	case resp.Outcome == pipeline.OutcomePlanOnly:
		return StatusPlanOnly
	default:
		return StatusAnalyzed
	}
}

func (r *Renderer) badge(status string) string {
	return r.s.status(status).Render(StatusIcon(status) + " " + status)
}

func (r *Renderer) field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s %s\n", r.s.label.Render(label+":"), value)
}

// Upgrade renders a single upgrade response.
func (r *Renderer) Upgrade(resp *upgrade.Response) string {
	var b strings.Builder
	if resp == nil {
		b.WriteString(r.badge(StatusFailed) + "\n")
		return b.String()
	}

	title := resp.Repository
	if title == "" {
		title = "upgrade"
	}
	fmt.Fprintf(&b, "%s  %s\n", r.s.title.Render(title), r.badge(Status(resp)))
	r.field(&b, "Run", resp.RunID)

	if res := resp.Result; res != nil && res.Plan != nil {
		t := res.Plan.Target
		current := t.Current
		if current == "" {
			current = "unknown"
		}
		target := t.Version()
		if target == "" {
			target = "unknown"
		}
		r.field(&b, "Target", fmt.Sprintf("%s %s → %s", t.Package, current, target))
		if res.Plan.Variant != pipeline.VariantOK {
			r.field(&b, "Planner", r.s.warning.Render(res.Plan.Variant.String()+": "+res.Plan.Reason))
		}
		for _, u := range res.Plan.Updates {
			fmt.Fprintf(&b, "  %s %s %s → %s\n", r.s.muted.Render("+"), u.Package, u.From, u.To)
		}

		if res.Parse != nil {
			if res.Parse.Summary != "" {
				r.field(&b, "Summary", res.Parse.Summary)
			}
			if n := len(res.Parse.BreakingChanges); n > 0 {
				r.field(&b, "Breaking changes", fmt.Sprintf("%d", n))
				for _, c := range res.Parse.BreakingChanges {
					fmt.Fprintf(&b, "  %s %s\n", r.s.warning.Render("•"), c)
				}
			}
		}
		if res.Codemod != nil {
			r.field(&b, "Proposed files", fmt.Sprintf("%d", len(res.Codemod.UsableFiles())))
		}
	}

	switch {
	case resp.PR != nil:
		r.field(&b, "Pull request", fmt.Sprintf("#%d %s", resp.PR.PRNumber, resp.PR.PRURL))
		r.field(&b, "Branch", resp.PR.BranchName)
		r.field(&b, "Files changed", fmt.Sprintf("%d", resp.PR.FilesChanged))
		if len(resp.PR.FailedFiles) > 0 {
			r.field(&b, "Not written", r.s.warning.Render(strings.Join(resp.PR.FailedFiles, ", ")))
		}
	case resp.PublishError != "":
		r.field(&b, "Publish error", r.s.err.Render(resp.PublishError))
	}

	if resp.Duration > 0 {
		b.WriteString(r.s.muted.Render(fmt.Sprintf("finished in %s", resp.Duration.Round(time.Millisecond))) + "\n")
	}
	return b.String()
}

// Dashboard renders one table row per repository.
func (r *Renderer) Dashboard(entries []upgrade.DashboardEntry) string {
	rows := make([][]string, 0, len(entries))
	statuses := make([]string, 0, len(entries))
	for _, e := range entries {
		status := Status(e.Response)
		detail := ""
		switch {
		case e.Failed():
			detail = e.Error
		case e.Response.PR != nil:
			detail = e.Response.PR.PRURL
		case e.Response.PublishError != "":
			detail = e.Response.PublishError
		}
		target := ""
		if e.Response != nil && e.Response.Result != nil && e.Response.Result.Plan != nil {
			target = e.Response.Result.Plan.Target.Version()
		}
		rows = append(rows, []string{
			e.Owner + "/" + e.Name, e.TargetPackage, target, StatusIcon(status) + " " + status, truncate(detail, maxDetailWidth),
		})
		statuses = append(statuses, status)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.s.border).
		Headers("REPOSITORY", "PACKAGE", "TARGET", "STATUS", "DETAIL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.s.header
			}
			if col == 3 && row >= 0 && row < len(statuses) {
				return r.s.status(statuses[row]).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	failed := 0
	for _, e := range entries {
		if e.Failed() {
			failed++
		}
	}
	summary := r.s.muted.Render(fmt.Sprintf("%d repositories, %d failed", len(entries), failed))
	return t.String() + "\n" + summary + "\n"
}

// Tree renders a repository tree. Manifest contents are marked, errors are
// shown inline.
func (r *Renderer) Tree(root *tree.RepositoryNode) string {
	if root == nil {
		return ""
	}
	label := root.Owner + "/" + root.Name
	if root.Path != "" {
		label += ":" + root.Path
	}
	out := r.treeNode(root, label).String()
	summary := fmt.Sprintf("%d files, %d directories, %d manifests",
		root.TotalFiles, root.TotalDirectories, len(tree.Manifests(root)))
	if errs := tree.Errors(root); len(errs) > 0 {
		summary += fmt.Sprintf(", %d errors", len(errs))
	}
	return out + "\n" + r.s.muted.Render(summary) + "\n"
}

func (r *Renderer) treeNode(n *tree.RepositoryNode, label string) *ltree.Tree {
	if n.Error != "" {
		label += " " + r.s.err.Render("("+n.Error+")")
	}
	t := ltree.Root(label).
		Enumerator(ltree.RoundedEnumerator).
		EnumeratorStyle(r.s.border)

	dirs := append([]*tree.RepositoryNode(nil), n.Directories...)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })
	for _, d := range dirs {
		t.Child(r.treeNode(d, d.Name+"/"))
	}

	files := append([]tree.FileEntry(nil), n.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		name := f.Name
		switch {
		case f.Error != "":
			name += " " + r.s.err.Render("("+f.Error+")")
		case f.Content != nil:
			name += " " + r.s.title.Render("[manifest]")
		}
		t.Child(name)
	}
	return t
}

// truncate shortens s to width visual columns, ending in "..." when cut.
func truncate(s string, width int) string {
	if width <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
