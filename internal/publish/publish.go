// Package publish turns the output of an upgrade pipeline into a pull request:
// a new branch, one write per proposed file, a migration document and the
// pull request itself.
package publish

import (
	"context"
	"strings"
	"time"

	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/hosting"
	"github.com/Iron-Ham/botdas/internal/logging"
	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/tree"
)

// HostingAPI is the subset of the hosting client the publisher uses.
type HostingAPI interface {
	GetRepository(ctx context.Context, owner, repo string) (hosting.Repository, error)
	GetBranch(ctx context.Context, owner, repo, branch string) (hosting.Branch, error)
	CreateRef(ctx context.Context, owner, repo, ref, sha string) error
	GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error)
	PutContents(ctx context.Context, owner, repo string, opts hosting.PutContentsOptions) (hosting.CommitResult, error)
	CreatePullRequest(ctx context.Context, owner, repo string, opts hosting.PullRequestOptions) (hosting.PullRequest, error)
	AddLabels(ctx context.Context, owner, repo string, number int, labels []string) error
	RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error
}

// Config controls branch naming and pull request options.
type Config struct {
	// BaseBranch is the branch PRs target; empty uses the repository default.
	BaseBranch   string
	BranchPrefix string
	Labels       []string
	Draft        bool
	// MigrationDocPath defaults to DefaultMigrationDocPath.
	MigrationDocPath string
	DefaultReviewers []string
	ReviewersByPath  map[string][]string
}

// Request is the input to Publish.
type Request struct {
	Owner string
	Repo  string
	RunID string
	// Tree is the fetched repository, used to rewrite an existing manifest.
	Tree    *tree.RepositoryNode
	Plan    *pipeline.PlanResult
	Parse   *pipeline.ParseResult
	Codemod *pipeline.CodemodResult
}

// Result describes an opened pull request.
type Result struct {
	Success    bool   `json:"success"`
	PRURL      string `json:"prUrl"`
	PRNumber   int    `json:"prNumber"`
	BranchName string `json:"branchName"`
	// FilesChanged counts successful writes, excluding the migration document.
	FilesChanged int      `json:"filesChanged"`
	FailedFiles  []string `json:"failedFiles,omitempty"`
	Reviewers    []string `json:"reviewers,omitempty"`
}

// Publisher opens upgrade pull requests.
type Publisher struct {
	api    HostingAPI
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock replaces the clock used for branch names and the migration document.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher creates a Publisher writing through api.
func NewPublisher(api HostingAPI, cfg Config, opts ...Option) *Publisher {
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = DefaultBranchPrefix
	}
	if cfg.MigrationDocPath == "" {
		cfg.MigrationDocPath = DefaultMigrationDocPath
	}
	p := &Publisher{
		api:    api,
		cfg:    cfg,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish creates the upgrade branch, writes the changes and the migration
// document, and opens the pull request. Individual file writes are best
// effort: failures are logged and listed in Result.FailedFiles. Branch
// creation and pull request creation failures abort with a *errors.PublishError.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	if req.Plan == nil || strings.TrimSpace(req.Plan.Target.Package) == "" || req.Plan.Target.Version() == "" {
		return nil, errors.NewPublishError("validate",
			errors.NewValidationError("plan with a target package and version is required").WithField("plan"))
	}
	target := req.Plan.Target
	logger := p.logger.WithRepository(req.Owner + "/" + req.Repo).WithStage("publish")
	if req.RunID != "" {
		logger = logger.WithRunID(req.RunID)
	}

	base, err := p.baseBranch(ctx, req.Owner, req.Repo)
	if err != nil {
		return nil, errors.NewPublishError("resolve base branch", err)
	}
	head, err := p.api.GetBranch(ctx, req.Owner, req.Repo, base)
	if err != nil {
		return nil, errors.NewPublishError("read base branch", err)
	}

	now := p.now()
	branch := BranchName(p.cfg.BranchPrefix, target.Package, now)
	if err := p.api.CreateRef(ctx, req.Owner, req.Repo, branch, head.Commit.SHA); err != nil {
		return nil, errors.NewPublishError("create branch", err).WithBranch(branch)
	}
	logger.Info("created upgrade branch", "branch", branch, "base", base)

	result := &Result{BranchName: branch}
	var written []FileChange
	for _, change := range Changes(req.Codemod, target, req.Tree, req.Repo) {
		if err := p.upsert(ctx, req.Owner, req.Repo, branch, change); err != nil {
			logger.Warn("file write failed", "path", change.Path, "error", err)
			result.FailedFiles = append(result.FailedFiles, change.Path)
			continue
		}
		written = append(written, change)
	}
	result.FilesChanged = len(written)

	data := TemplateData{
		Package:     target.Package,
		From:        target.Current,
		To:          target.Version(),
		Branch:      branch,
		RunID:       req.RunID,
		BaseBranch:  base,
		Files:       written,
		FailedFiles: result.FailedFiles,
		Updates:     req.Plan.Updates,
		PlannerJSON: stageJSON(&req.Plan.Response),
		ParserJSON:  "null",
		CodemodJSON: "null",
	}
	if req.Parse != nil {
		data.Summary = req.Parse.Summary
		data.BreakingChanges = req.Parse.BreakingChanges
		data.ParserJSON = stageJSON(&req.Parse.Response)
	}
	if req.Codemod != nil {
		data.CodemodJSON = stageJSON(&req.Codemod.Response)
	}

	docWritten := false
	doc, err := RenderMigrationDoc(data, now)
	if err == nil {
		err = p.upsert(ctx, req.Owner, req.Repo, branch, FileChange{
			Path:    p.cfg.MigrationDocPath,
			Content: doc,
			Message: "docs: add migration notes for " + target.Package,
		})
	}
	if err != nil {
		logger.Warn("migration document write failed", "path", p.cfg.MigrationDocPath, "error", err)
		result.FailedFiles = append(result.FailedFiles, p.cfg.MigrationDocPath)
		data.FailedFiles = result.FailedFiles
	} else {
		docWritten = true
	}

	if len(written) == 0 && !docWritten {
		return nil, errors.NewPublishError("write files", errors.ErrNoChanges).WithBranch(branch)
	}

	body, err := RenderBody(data)
	if err != nil {
		return nil, errors.NewPublishError("render body", err).WithBranch(branch)
	}

	pr, err := p.api.CreatePullRequest(ctx, req.Owner, req.Repo, hosting.PullRequestOptions{
		Title:  Title(target.Package, target.Current, target.Version()),
		Head:   branch,
		Base:   base,
		Body:   body,
		Draft:  p.cfg.Draft,
		Labels: p.cfg.Labels,
	})
	if err != nil {
		return nil, errors.NewPublishError("create pull request", err).WithBranch(branch)
	}
	result.Success = true
	result.PRURL = pr.HTMLURL
	result.PRNumber = pr.Number
	logger.Info("opened pull request", "number", pr.Number, "url", pr.HTMLURL,
		"files_changed", result.FilesChanged, "failed_files", len(result.FailedFiles))

	if err := p.api.AddLabels(ctx, req.Owner, req.Repo, pr.Number, p.cfg.Labels); err != nil {
		logger.Warn("adding labels failed", "number", pr.Number, "error", err)
	}

	reviewers := ResolveReviewers(ChangedPaths(written), p.cfg.DefaultReviewers, p.cfg.ReviewersByPath)
	if len(reviewers) > 0 {
		if err := p.api.RequestReviewers(ctx, req.Owner, req.Repo, pr.Number, reviewers); err != nil {
			logger.Warn("requesting reviewers failed", "number", pr.Number, "error", err)
		} else {
			result.Reviewers = reviewers
		}
	}

	return result, nil
}

func (p *Publisher) baseBranch(ctx context.Context, owner, repo string) (string, error) {
	if p.cfg.BaseBranch != "" {
		return p.cfg.BaseBranch, nil
	}
	info, err := p.api.GetRepository(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	if info.DefaultBranch == "" {
		return "main", nil
	}
	return info.DefaultBranch, nil
}

// upsert writes one file on branch, guarding updates with the current sha.
func (p *Publisher) upsert(ctx context.Context, owner, repo, branch string, change FileChange) error {
	sha, err := p.api.GetFileSHA(ctx, owner, repo, change.Path, branch)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return errors.Wrapf(err, "reading %s", change.Path)
	}

	_, err = p.api.PutContents(ctx, owner, repo, hosting.PutContentsOptions{
		Path:    change.Path,
		Message: change.Message,
		Content: change.Content,
		Branch:  branch,
		SHA:     sha,
	})
	return err
}
