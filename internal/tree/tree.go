// Package tree retrieves a repository's directory structure from the hosting
// platform and decodes the contents of dependency manifest files.
//
// Traversal uses an explicit worklist over an arena of nodes rather than
// recursion. Each arena slot records its own depth and the index of its
// parent, so bounding depth and computing totals are both plain loops over
// the arena.
package tree

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/hosting"
	"github.com/Iron-Ham/botdas/internal/logging"
)

// DefaultMaxDepth is the deepest directory level listed by default.
const DefaultMaxDepth = 10

// FileEntry is a single file in the tree.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Content is set only for manifest files.
	Content *string `json:"content"`
	SHA     string  `json:"sha"`
	Error   string  `json:"error,omitempty"`
}

// RepositoryNode is a directory in the tree.
// TotalFiles and TotalDirectories count this node's own entries plus those
// of every descendant.
type RepositoryNode struct {
	Name             string            `json:"name"`
	Owner            string            `json:"owner"`
	Path             string            `json:"path"`
	Depth            int               `json:"depth"`
	Files            []FileEntry       `json:"files"`
	Directories      []*RepositoryNode `json:"directories"`
	TotalFiles       int               `json:"totalFiles"`
	TotalDirectories int               `json:"totalDirectories"`
	Error            string            `json:"error,omitempty"`
}

// ContentsAPI is the subset of the hosting client the fetcher needs.
type ContentsAPI interface {
	GetContents(ctx context.Context, owner, repo, path, ref string) (hosting.Contents, error)
}

// Fetcher builds RepositoryNode trees.
type Fetcher struct {
	api      ContentsAPI
	maxDepth int
	ref      string
	matcher  *Matcher
	logger   *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxDepth sets the deepest level listed. Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(f *Fetcher) {
		if depth > 0 {
			f.maxDepth = depth
		}
	}
}

// WithManifestPatterns adds doublestar patterns to the manifest allowlist.
func WithManifestPatterns(patterns ...string) Option {
	return func(f *Fetcher) {
		f.matcher = NewMatcher(patterns...)
	}
}

// WithRef reads the tree at a branch, tag or commit instead of the default branch.
func WithRef(ref string) Option {
	return func(f *Fetcher) {
		f.ref = ref
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher reading through api.
func NewFetcher(api ContentsAPI, opts ...Option) *Fetcher {
	f := &Fetcher{
		api:      api,
		maxDepth: DefaultMaxDepth,
		matcher:  NewMatcher(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxDepth returns the configured depth bound.
func (f *Fetcher) MaxDepth() int {
	return f.maxDepth
}

// Fetch returns the tree rooted at path (empty for the repository root).
func (f *Fetcher) Fetch(ctx context.Context, owner, repo, path string) (*RepositoryNode, error) {
	return f.FetchAt(ctx, owner, repo, path, 0)
}

// slot is an arena entry. Children always sit at higher indices than their
// parent.
type slot struct {
	node   *RepositoryNode
	parent int
	depth  int
}

// FetchAt is Fetch with an explicit starting depth.
//
// A node deeper than the bound is returned with Error set and no entries.
// A failure listing a subdirectory is recorded on that node and traversal
// continues with its siblings; only a failure listing the starting path is
// returned as an error.
func (f *Fetcher) FetchAt(ctx context.Context, owner, repo, path string, depth int) (*RepositoryNode, error) {
	path = strings.Trim(path, "/")
	root := newNode(owner, repo, path, depth)
	arena := []slot{{node: root, parent: -1, depth: depth}}

	for i := 0; i < len(arena); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cur := arena[i]
		if cur.depth > f.maxDepth {
			cur.node.Error = fmt.Errorf("%w: limit %d, depth %d", errors.ErrMaxDepth, f.maxDepth, cur.depth).Error()
			continue
		}

		contents, err := f.api.GetContents(ctx, owner, repo, cur.node.Path, f.ref)
		if err != nil {
			if i == 0 {
				return nil, errors.NewTreeError(owner+"/"+repo, path, err)
			}
			f.logger.Warn("failed to list directory",
				"repository", owner+"/"+repo,
				"path", cur.node.Path,
				"error", err.Error(),
			)
			cur.node.Error = err.Error()
			continue
		}

		for _, item := range contents.Items {
			if item.Type == hosting.TypeDir {
				child := newNode(owner, item.Name, item.Path, cur.depth+1)
				cur.node.Directories = append(cur.node.Directories, child)
				arena = append(arena, slot{node: child, parent: i, depth: cur.depth + 1})
				continue
			}
			cur.node.Files = append(cur.node.Files, f.fileEntry(ctx, owner, repo, item))
		}
	}

	computeTotals(arena)

	f.logger.Debug("fetched repository tree",
		"repository", owner+"/"+repo,
		"nodes", len(arena),
		"files", root.TotalFiles,
	)
	return root, nil
}

func newNode(owner, name, path string, depth int) *RepositoryNode {
	return &RepositoryNode{
		Name:        name,
		Owner:       owner,
		Path:        path,
		Depth:       depth,
		Files:       []FileEntry{},
		Directories: []*RepositoryNode{},
	}
}

// fileEntry records metadata for item and, for manifests, its decoded body.
// Failures are recorded on the entry.
func (f *Fetcher) fileEntry(ctx context.Context, owner, repo string, item hosting.ContentItem) FileEntry {
	entry := FileEntry{
		Name: item.Name,
		Path: item.Path,
		Size: item.Size,
		SHA:  item.SHA,
	}
	if item.Type != hosting.TypeFile || !f.matcher.IsManifest(item.Path) {
		return entry
	}

	// Single-file listings already carry the body.
	if item.Content == "" {
		contents, err := f.api.GetContents(ctx, owner, repo, item.Path, f.ref)
		if err != nil {
			entry.Error = err.Error()
			return entry
		}
		if contents.IsDir() || len(contents.Items) != 1 {
			entry.Error = "expected a file listing"
			return entry
		}
		item = contents.Items[0]
	}

	content, err := hosting.DecodeContent(item)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Content = &content
	return entry
}

// computeTotals fills in totals by walking the arena backwards, so every
// child is complete before it is added to its parent.
func computeTotals(arena []slot) {
	for i := range arena {
		arena[i].node.TotalFiles = 0
		arena[i].node.TotalDirectories = 0
	}
	for i := len(arena) - 1; i >= 0; i-- {
		n := arena[i].node
		n.TotalFiles += len(n.Files)
		n.TotalDirectories += len(n.Directories)
		if p := arena[i].parent; p >= 0 {
			arena[p].node.TotalFiles += n.TotalFiles
			arena[p].node.TotalDirectories += n.TotalDirectories
		}
	}
}

// Recount recomputes totals for a tree built elsewhere, such as one decoded
// from a request body.
func (n *RepositoryNode) Recount() {
	if n == nil {
		return
	}
	arena := []slot{{node: n, parent: -1}}
	for i := 0; i < len(arena); i++ {
		for _, child := range arena[i].node.Directories {
			if child != nil {
				arena = append(arena, slot{node: child, parent: i, depth: arena[i].depth + 1})
			}
		}
	}
	computeTotals(arena)
}

// Flatten returns every file in the tree, depth first, in listing order.
func Flatten(n *RepositoryNode) []FileEntry {
	var files []FileEntry
	Walk(n, func(node *RepositoryNode) {
		files = append(files, node.Files...)
	})
	return files
}

// Manifests returns every file whose content was fetched.
func Manifests(n *RepositoryNode) []FileEntry {
	var files []FileEntry
	for _, f := range Flatten(n) {
		if f.Content != nil {
			files = append(files, f)
		}
	}
	return files
}

// Walk calls fn for n and every descendant, depth first, parents before
// children.
func Walk(n *RepositoryNode, fn func(*RepositoryNode)) {
	if n == nil {
		return
	}
	stack := []*RepositoryNode{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(node)
		for i := len(node.Directories) - 1; i >= 0; i-- {
			if node.Directories[i] != nil {
				stack = append(stack, node.Directories[i])
			}
		}
	}
}

// File looks up a file by repository path.
func (n *RepositoryNode) File(filePath string) (FileEntry, bool) {
	filePath = strings.Trim(filePath, "/")
	for _, f := range Flatten(n) {
		if f.Path == filePath {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Errors returns a path-to-message map for every failed node and file.
func Errors(n *RepositoryNode) map[string]string {
	errs := make(map[string]string)
	Walk(n, func(node *RepositoryNode) {
		if node.Error != "" {
			errs[nodeKey(node)] = node.Error
		}
		for _, f := range node.Files {
			if f.Error != "" {
				errs[f.Path] = f.Error
			}
		}
	})
	return errs
}

func nodeKey(n *RepositoryNode) string {
	if n.Path == "" {
		return "/"
	}
	return n.Path + "/"
}
