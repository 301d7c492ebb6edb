package report

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/publish"
	"github.com/Iron-Ham/botdas/internal/tree"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

func sampleResponse(withTree bool) *upgrade.Response {
	resp := &upgrade.Response{
		Success:    true,
		RunID:      "01J0000000000000000000TEST",
		Outcome:    pipeline.OutcomeComplete,
		PR:         &publish.Result{Success: true, PRNumber: 7, BranchName: "botdas/upgrade-next-1"},
		Repository: "acme/web",
		Duration:   1500 * time.Millisecond,
	}
	if withTree {
		manifest := "{}"
		resp.Tree = &tree.RepositoryNode{
			Name:  "web",
			Owner: "acme",
			Files: []tree.FileEntry{
				{Name: "package.json", Path: "package.json", Content: &manifest},
				{Name: "yarn.lock", Path: "yarn.lock", Error: "fetch failed"},
				{Name: "README.md", Path: "README.md"},
			},
			TotalFiles: 3,
		}
	}
	return resp
}

func TestReport_WritesRunAndTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "reports")
	w.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	path, err := w.Report(sampleResponse(true))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "01J0000000000000000000TEST.json"), path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	var run struct {
		Repository  string `json:"repository"`
		GeneratedAt string `json:"generatedAt"`
		DurationMs  int64  `json:"durationMs"`
		Response    struct {
			Success bool   `json:"success"`
			RunID   string `json:"runId"`
			Outcome string `json:"outcome"`
			PR      struct {
				PRNumber   int    `json:"prNumber"`
				BranchName string `json:"branchName"`
			} `json:"pr"`
		} `json:"response"`
		Manifests  []string          `json:"manifests"`
		TreeErrors map[string]string `json:"treeErrors"`
	}
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, []string{"package.json"}, run.Manifests)
	assert.Equal(t, map[string]string{"yarn.lock": "fetch failed"}, run.TreeErrors)
	assert.Equal(t, "acme/web", run.Repository)
	assert.Equal(t, "2024-06-01T12:00:00Z", run.GeneratedAt)
	assert.Equal(t, int64(1500), run.DurationMs)
	assert.True(t, run.Response.Success)
	assert.Equal(t, "complete", run.Response.Outcome)
	assert.Equal(t, 7, run.Response.PR.PRNumber)

	snapshot, err := afero.ReadFile(fs, filepath.Join("reports", "01J0000000000000000000TEST.tree.json"))
	require.NoError(t, err)
	var node tree.RepositoryNode
	require.NoError(t, json.Unmarshal(snapshot, &node))
	assert.Equal(t, 3, node.TotalFiles)
}

func TestReport_WithoutTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "out")

	_, err := w.Report(sampleResponse(false))
	require.NoError(t, err)

	exists, err := afero.Exists(fs, filepath.Join("out", "01J0000000000000000000TEST.tree.json"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReport_RequiresRunID(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs(), "out")

	_, err := w.Report(&upgrade.Response{})
	assert.Error(t, err)
	_, err = w.Report(nil)
	assert.Error(t, err)
}

func TestWriteJSON_CreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "")

	require.NoError(t, w.WriteJSON(filepath.Join("a", "b", "c.json"), map[string]int{"n": 1}))

	data, err := afero.ReadFile(fs, filepath.Join("a", "b", "c.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 1}`, string(data))
}

func TestWriter_ReadOnlyFilesystem(t *testing.T) {
	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "out")

	_, err := w.Report(sampleResponse(false))
	assert.Error(t, err)
}
