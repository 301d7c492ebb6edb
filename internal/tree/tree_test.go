package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/hosting"
	"github.com/Iron-Ham/botdas/internal/testutil"
)

func newTestFetcher(t *testing.T, files map[string]string, opts ...Option) (*Fetcher, *testutil.FakeGitHub) {
	t.Helper()
	gh := testutil.NewFakeGitHub(t, "octo", "web", files)
	client := hosting.NewClient(hosting.WithBaseURL(gh.URL()))
	return NewFetcher(client, opts...), gh
}

// deepPath returns a path nested n directories deep.
func deepPath(n int, file string) string {
	parts := make([]string, 0, n+1)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprintf("d%d", i))
	}
	return strings.Join(append(parts, file), "/")
}

func TestFetch_ManifestContentOnly(t *testing.T) {
	f, _ := newTestFetcher(t, map[string]string{
		"package.json":          `{"dependencies":{"next":"13.0.0"}}`,
		"README.md":             "# web",
		"src/app.tsx":           "export default App",
		"api/requirements.txt":  "flask==2.0",
		"api/Dockerfile":        "FROM python:3.12",
		"infra/app.csproj":      "<Project/>",
		"infra/terraform/x.tf":  "resource {}",
		"services/go/go.mod":    "module x",
		"services/go/main.go":   "package main",
		"services/go/go.sum":    "",
		"config/custom.deps.in": "dep",
	}, WithManifestPatterns("**/*.deps.in"))

	root, err := f.Fetch(context.Background(), "octo", "web", "")
	require.NoError(t, err)

	withContent := map[string]bool{}
	for _, file := range Flatten(root) {
		withContent[file.Path] = file.Content != nil
		assert.Empty(t, file.Error, file.Path)
	}

	assert.Equal(t, map[string]bool{
		"package.json":          true,
		"README.md":             false,
		"src/app.tsx":           false,
		"api/requirements.txt":  true,
		"api/Dockerfile":        true,
		"infra/app.csproj":      true,
		"infra/terraform/x.tf":  false,
		"services/go/go.mod":    true,
		"services/go/main.go":   false,
		"services/go/go.sum":    true,
		"config/custom.deps.in": true,
	}, withContent)

	pkg, ok := root.File("package.json")
	require.True(t, ok)
	assert.Equal(t, `{"dependencies":{"next":"13.0.0"}}`, *pkg.Content)
	assert.Len(t, Manifests(root), 7)
}

func TestFetch_TotalsInvariant(t *testing.T) {
	f, _ := newTestFetcher(t, map[string]string{
		"a.txt":         "",
		"b/c.txt":       "",
		"b/d/e.txt":     "",
		"b/d/f.txt":     "",
		"b/g/h/i.txt":   "",
		"j/k.txt":       "",
		"package.json":  "{}",
		"b/d/go.mod":    "module x",
		"j/l/m/n/o.txt": "",
	})

	root, err := f.Fetch(context.Background(), "octo", "web", "")
	require.NoError(t, err)

	var check func(n *RepositoryNode) (files, dirs int)
	check = func(n *RepositoryNode) (int, int) {
		files, dirs := len(n.Files), len(n.Directories)
		for _, child := range n.Directories {
			cf, cd := check(child)
			files += cf
			dirs += cd
		}
		assert.Equal(t, files, n.TotalFiles, "TotalFiles at %q", n.Path)
		assert.Equal(t, dirs, n.TotalDirectories, "TotalDirectories at %q", n.Path)
		return files, dirs
	}
	check(root)

	assert.Equal(t, 9, root.TotalFiles)
	assert.Equal(t, 8, root.TotalDirectories) // b, b/d, b/g, b/g/h, j, j/l, j/l/m, j/l/m/n
	assert.Len(t, Flatten(root), root.TotalFiles)
}

func TestFetch_DepthBound(t *testing.T) {
	t.Run("nodes past the bound carry an error", func(t *testing.T) {
		f, gh := newTestFetcher(t, map[string]string{
			deepPath(6, "package.json"): "{}",
			"top.txt":                   "",
		}, WithMaxDepth(3))

		root, err := f.Fetch(context.Background(), "octo", "web", "")
		require.NoError(t, err)

		var deepest *RepositoryNode
		Walk(root, func(n *RepositoryNode) {
			assert.LessOrEqual(t, n.Depth, 4)
			if n.Depth == 4 {
				deepest = n
			}
		})
		require.NotNil(t, deepest)
		assert.Equal(t, "d1/d2/d3/d4", deepest.Path)
		assert.Equal(t, errors.ErrMaxDepth.Error()+": limit 3, depth 4", deepest.Error)
		assert.Empty(t, deepest.Files)
		assert.Empty(t, deepest.Directories)

		// root, d1, d2, d3 listed; d4 never requested.
		assert.Equal(t, 4, gh.CountRequests(http.MethodGet, "/contents"))
	})

	for _, depth := range []int{DefaultMaxDepth + 1, DefaultMaxDepth + 5, 100} {
		t.Run(fmt.Sprintf("start at depth %d", depth), func(t *testing.T) {
			f, gh := newTestFetcher(t, map[string]string{"a/b.txt": ""})

			node, err := f.FetchAt(context.Background(), "octo", "web", "a", depth)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(node.Error, errors.ErrMaxDepth.Error()), node.Error)
			assert.Empty(t, node.Files)
			assert.Empty(t, node.Directories)
			assert.Zero(t, node.TotalFiles)
			assert.Zero(t, gh.CountRequests(http.MethodGet, "/contents"))
		})
	}

	t.Run("default bound terminates deep trees", func(t *testing.T) {
		f, _ := newTestFetcher(t, map[string]string{deepPath(25, "x.txt"): ""})

		root, err := f.Fetch(context.Background(), "octo", "web", "")
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxDepth+1, root.TotalDirectories)
		assert.Zero(t, root.TotalFiles)
	})
}

func TestFetch_PerItemFailures(t *testing.T) {
	f, gh := newTestFetcher(t, map[string]string{
		"package.json":         "{}",
		"broken/package.json":  "{}",
		"secret/file.txt":      "",
		"sibling/yarn.lock":    "# lock",
		"sibling/deep/x.txt":   "",
		"sibling/deep/go.mod":  "module y",
		"zzz/requirements.txt": "x",
	})
	gh.FailOn(http.MethodGet, "/contents/broken/package.json", http.StatusInternalServerError, "boom")
	gh.FailOn(http.MethodGet, "/contents/secret", http.StatusForbidden, "forbidden")

	root, err := f.Fetch(context.Background(), "octo", "web", "")
	require.NoError(t, err)

	broken, ok := root.File("broken/package.json")
	require.True(t, ok)
	assert.Nil(t, broken.Content)
	assert.Contains(t, broken.Error, "500")

	var secret *RepositoryNode
	for _, d := range root.Directories {
		if d.Path == "secret" {
			secret = d
		}
	}
	require.NotNil(t, secret)
	assert.Contains(t, secret.Error, "403")
	assert.Empty(t, secret.Files)

	lock, ok := root.File("sibling/yarn.lock")
	require.True(t, ok)
	require.NotNil(t, lock.Content)
	assert.Equal(t, "# lock", *lock.Content)

	_, ok = root.File("sibling/deep/go.mod")
	assert.True(t, ok, "traversal continues after a failed sibling")

	errs := Errors(root)
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "secret/")
	assert.Contains(t, errs, "broken/package.json")
}

func TestFetch_RootFailure(t *testing.T) {
	f, gh := newTestFetcher(t, map[string]string{"a.txt": ""})
	gh.FailOn(http.MethodGet, "/contents", http.StatusUnauthorized, "Bad credentials")

	_, err := f.Fetch(context.Background(), "octo", "web", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAuthRequired))

	var treeErr *errors.TreeError
	require.True(t, errors.As(err, &treeErr))
	assert.Equal(t, "octo/web", treeErr.Repository)
}

func TestFetch_SingleFile(t *testing.T) {
	f, gh := newTestFetcher(t, map[string]string{"package.json": `{"name":"solo"}`})

	root, err := f.Fetch(context.Background(), "octo", "web", "package.json")
	require.NoError(t, err)

	require.Len(t, root.Files, 1)
	require.NotNil(t, root.Files[0].Content)
	assert.Equal(t, `{"name":"solo"}`, *root.Files[0].Content)
	assert.Equal(t, 1, root.TotalFiles)
	assert.Zero(t, root.TotalDirectories)
	assert.Equal(t, 1, gh.CountRequests(http.MethodGet, "/contents"), "body comes with the listing")
}

func TestFetch_ContextCanceled(t *testing.T) {
	f, _ := newTestFetcher(t, map[string]string{"a/b.txt": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "octo", "web", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecount(t *testing.T) {
	var root RepositoryNode
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "web",
		"files": [{"name": "a", "path": "a"}],
		"directories": [
			{"name": "b", "path": "b", "files": [{"name": "c", "path": "b/c"}, {"name": "d", "path": "b/d"}],
			 "directories": [{"name": "e", "path": "b/e", "files": [{"name": "f", "path": "b/e/f"}]}]}
		],
		"totalFiles": 99
	}`), &root))

	root.Recount()
	assert.Equal(t, 4, root.TotalFiles)
	assert.Equal(t, 2, root.TotalDirectories)
	assert.Equal(t, 3, root.Directories[0].TotalFiles)

	var nilNode *RepositoryNode
	nilNode.Recount()
	assert.Nil(t, Flatten(nil))
}

func TestFileEntry_JSONContentNull(t *testing.T) {
	data, err := json.Marshal(FileEntry{Name: "main.go", Path: "main.go"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":null`)
	assert.NotContains(t, string(data), `"error"`)
}

func TestMatcher(t *testing.T) {
	m := NewMatcher("**/*.lockfile", "[bad")

	assert.True(t, m.IsManifest("package.json"))
	assert.True(t, m.IsManifest("apps/web/package.json"))
	assert.True(t, m.IsManifest("requirements-dev.txt"))
	assert.True(t, m.IsManifest("docker/Dockerfile.prod"))
	assert.True(t, m.IsManifest("x/y.lockfile"))
	assert.False(t, m.IsManifest("src/index.ts"))
	assert.False(t, m.IsManifest("package.json.bak"))
}
