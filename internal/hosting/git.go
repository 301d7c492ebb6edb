package hosting

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Repository is the subset of repository metadata botdas reads.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Branch is a branch with its head commit.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// PullRequestOptions describes a pull request to open.
// Labels are echoed in the create payload and applied again through AddLabels.
type PullRequestOptions struct {
	Title  string   `json:"title"`
	Head   string   `json:"head"`
	Base   string   `json:"base"`
	Body   string   `json:"body"`
	Draft  bool     `json:"draft,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// PullRequest is an opened pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Draft   bool   `json:"draft"`
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (Repository, error) {
	var r Repository
	if err := c.do(ctx, http.MethodGet, repoPath(owner, repo), nil, nil, &r); err != nil {
		return Repository{}, err
	}
	return r, nil
}

// GetBranch fetches a branch and its head commit sha.
func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) (Branch, error) {
	var b Branch
	if err := c.do(ctx, http.MethodGet, repoPath(owner, repo, "branches", escapePath(branch)), nil, nil, &b); err != nil {
		return Branch{}, err
	}
	return b, nil
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateRef creates a git reference. ref may be a full "refs/heads/x" name
// or a bare branch name.
func (c *Client) CreateRef(ctx context.Context, owner, repo, ref, sha string) error {
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/heads/" + ref
	}
	req := createRefRequest{Ref: ref, SHA: sha}
	return c.do(ctx, http.MethodPost, repoPath(owner, repo, "git", "refs"), nil, req, nil)
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, opts PullRequestOptions) (PullRequest, error) {
	var pr PullRequest
	if err := c.do(ctx, http.MethodPost, repoPath(owner, repo, "pulls"), nil, opts, &pr); err != nil {
		return PullRequest{}, err
	}
	return pr, nil
}

// AddLabels applies labels to an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	req := map[string][]string{"labels": labels}
	return c.do(ctx, http.MethodPost, repoPath(owner, repo, "issues", strconv.Itoa(number), "labels"), nil, req, nil)
}

// RequestReviewers requests reviews on a pull request.
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	req := map[string][]string{"reviewers": reviewers}
	return c.do(ctx, http.MethodPost, repoPath(owner, repo, "pulls", strconv.Itoa(number), "requested_reviewers"), nil, req, nil)
}
