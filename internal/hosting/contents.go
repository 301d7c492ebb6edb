package hosting

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Content item types reported by the contents API.
const (
	TypeFile    = "file"
	TypeDir     = "dir"
	TypeSymlink = "symlink"
	TypeSubmod  = "submodule"
)

// ContentItem is one entry returned by the contents API.
// Content and Encoding are only populated when a single file is requested.
type ContentItem struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Contents is the result of a contents request: a directory listing or a
// single file. A single file is exposed as a one-element listing.
type Contents struct {
	Items []ContentItem
	dir   bool
}

// IsDir reports whether the response was a directory listing.
func (c Contents) IsDir() bool {
	return c.dir
}

// UnmarshalJSON accepts either an array (directory) or an object (file).
func (c *Contents) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		c.dir = true
		return json.Unmarshal(trimmed, &c.Items)
	}

	var item ContentItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return err
	}
	c.dir = false
	c.Items = []ContentItem{item}
	return nil
}

// GetContents fetches the file or directory at path. An empty ref uses the
// repository's default branch.
func (c *Client) GetContents(ctx context.Context, owner, repo, path, ref string) (Contents, error) {
	var query url.Values
	if ref != "" {
		query = url.Values{"ref": {ref}}
	}

	var contents Contents
	if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path), query, nil, &contents); err != nil {
		return Contents{}, err
	}
	return contents, nil
}

// GetFile fetches the single file at path and returns its decoded body.
func (c *Client) GetFile(ctx context.Context, owner, repo, path, ref string) (string, error) {
	contents, err := c.GetContents(ctx, owner, repo, path, ref)
	if err != nil {
		return "", err
	}
	if contents.IsDir() || len(contents.Items) != 1 {
		return "", fmt.Errorf("%s is not a file", path)
	}
	return DecodeContent(contents.Items[0])
}

// GetFileSHA returns the blob sha of the file at path on ref.
// A missing file yields an error matching errors.ErrNotFound.
func (c *Client) GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error) {
	contents, err := c.GetContents(ctx, owner, repo, path, ref)
	if err != nil {
		return "", err
	}
	if contents.IsDir() || len(contents.Items) != 1 {
		return "", fmt.Errorf("%s is not a file", path)
	}
	return contents.Items[0].SHA, nil
}

// DecodeContent decodes the base64 body of a file item.
// GitHub wraps base64 bodies at 60 columns, so newlines are stripped first.
func DecodeContent(item ContentItem) (string, error) {
	switch item.Encoding {
	case "base64":
		cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(item.Content)
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", item.Path, err)
		}
		return string(decoded), nil
	case "":
		return item.Content, nil
	default:
		return "", fmt.Errorf("decode %s: unsupported encoding %q", item.Path, item.Encoding)
	}
}

// PutContentsOptions describes a file create or update.
type PutContentsOptions struct {
	Path    string
	Message string
	// Content is the raw file body; it is base64 encoded on the wire.
	Content string
	Branch  string
	// SHA guards an update. Leave empty to create a new file.
	SHA string
}

// CommitResult is the relevant part of a contents write response.
type CommitResult struct {
	Content struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

// PutContents creates or updates a file.
func (c *Client) PutContents(ctx context.Context, owner, repo string, opts PutContentsOptions) (CommitResult, error) {
	req := putContentsRequest{
		Message: opts.Message,
		Content: base64.StdEncoding.EncodeToString([]byte(opts.Content)),
		Branch:  opts.Branch,
		SHA:     opts.SHA,
	}

	var result CommitResult
	if err := c.do(ctx, http.MethodPut, contentsPath(owner, repo, opts.Path), nil, req, &result); err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

func contentsPath(owner, repo, path string) string {
	escaped := escapePath(path)
	if escaped == "" {
		return repoPath(owner, repo, "contents")
	}
	return repoPath(owner, repo, "contents", escaped)
}
