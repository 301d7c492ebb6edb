// Package report persists upgrade runs and repository snapshots as JSON
// files.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/botdas/internal/tree"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

// Run is the document written for one upgrade.
type Run struct {
	Repository  string            `json:"repository"`
	GeneratedAt time.Time         `json:"generatedAt"`
	DurationMs  int64             `json:"durationMs"`
	Response    *upgrade.Response `json:"response"`
	// Manifests lists the paths whose content the agents saw.
	Manifests  []string          `json:"manifests,omitempty"`
	TreeErrors map[string]string `json:"treeErrors,omitempty"`
}

// Writer writes reports below a directory of an afero filesystem.
type Writer struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// NewWriter creates a Writer rooted at dir on fs.
func NewWriter(fs afero.Fs, dir string) *Writer {
	return &Writer{fs: fs, dir: dir, now: time.Now}
}

// Report writes {dir}/{runID}.json and, when the response carries a tree,
// {dir}/{runID}.tree.json. It returns the path of the run document.
func (w *Writer) Report(resp *upgrade.Response) (string, error) {
	if resp == nil || resp.RunID == "" {
		return "", fmt.Errorf("report requires a response with a run id")
	}

	run := Run{
		Repository:  resp.Repository,
		GeneratedAt: w.now().UTC(),
		DurationMs:  resp.Duration.Milliseconds(),
		Response:    resp,
	}
	if resp.Tree != nil {
		for _, f := range tree.Manifests(resp.Tree) {
			run.Manifests = append(run.Manifests, f.Path)
		}
		run.TreeErrors = tree.Errors(resp.Tree)
	}

	path := filepath.Join(w.dir, resp.RunID+".json")
	if err := w.WriteJSON(path, run); err != nil {
		return "", err
	}

	if resp.Tree != nil {
		if err := w.WriteTree(filepath.Join(w.dir, resp.RunID+".tree.json"), resp.Tree); err != nil {
			return "", err
		}
	}
	return path, nil
}

// WriteTree writes a repository snapshot to path.
func (w *Writer) WriteTree(path string, root *tree.RepositoryNode) error {
	return w.WriteJSON(path, root)
}

// WriteJSON writes v as indented JSON to path, creating parent directories.
func (w *Writer) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
