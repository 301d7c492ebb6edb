// Package upgrade is the entry point for dependency upgrades: it fetches the
// repository tree, runs the analysis pipeline and publishes a pull request.
package upgrade

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Iron-Ham/botdas/internal/agent"
	"github.com/Iron-Ham/botdas/internal/config"
	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/hosting"
	"github.com/Iron-Ham/botdas/internal/logging"
	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/publish"
	"github.com/Iron-Ham/botdas/internal/tree"
)

// Request describes one upgrade.
type Request struct {
	Owner string
	Name  string
	// Tree is fetched from the hosting platform when nil. A supplied tree
	// has its totals recomputed before use.
	Tree          *tree.RepositoryNode
	TargetPackage string
	// Token authenticates hosting calls for this request only. Empty uses
	// the service's configured token.
	Token string
	// NoPR skips publishing.
	NoPR bool
}

// Repository returns owner/name.
func (r Request) Repository() string {
	return r.Owner + "/" + r.Name
}

// Validate checks the required fields.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return errors.NewValidationError("owner is required").WithField("owner")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.NewValidationError("name is required").WithField("name")
	}
	if strings.TrimSpace(r.TargetPackage) == "" {
		return errors.NewValidationError("target package is required").WithField("targetPackage")
	}
	return nil
}

// Analysis holds the raw output of each stage. Stages that did not run are nil.
type Analysis struct {
	Planner *agent.Response `json:"planner"`
	Parser  *agent.Response `json:"parser"`
	Codemod *agent.Response `json:"codemod"`
}

// Response is the result of an upgrade.
type Response struct {
	Success  bool             `json:"success"`
	RunID    string           `json:"runId"`
	Outcome  pipeline.Outcome `json:"outcome"`
	Analysis Analysis         `json:"analysis"`
	// PR is nil when publishing was skipped or failed.
	PR *publish.Result `json:"pr"`
	// PublishError explains a nil PR after a publishing failure.
	PublishError string `json:"publishError,omitempty"`

	Repository string               `json:"-"`
	Result     *pipeline.Result     `json:"-"`
	Tree       *tree.RepositoryNode `json:"-"`
	Duration   time.Duration        `json:"-"`
}

// Reporter persists upgrade responses.
type Reporter interface {
	Report(resp *Response) (string, error)
}

// Service runs upgrades.
type Service struct {
	hosting        *hosting.Client
	agents         pipeline.AgentCaller
	pipelineCfg    pipeline.Config
	publishCfg     publish.Config
	maxDepth       int
	extraManifests []string
	logger         *logging.Logger
	reporter       Reporter
	observer       pipeline.Observer
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReporter persists every successful response.
func WithReporter(r Reporter) Option {
	return func(s *Service) {
		s.reporter = r
	}
}

// WithObserver forwards pipeline stage callbacks.
func WithObserver(obs pipeline.Observer) Option {
	return func(s *Service) {
		s.observer = obs
	}
}

// WithPipelineConfig sets the agent app names and instructions.
func WithPipelineConfig(cfg pipeline.Config) Option {
	return func(s *Service) {
		s.pipelineCfg = cfg
	}
}

// WithPublishConfig sets branch and pull request options.
func WithPublishConfig(cfg publish.Config) Option {
	return func(s *Service) {
		s.publishCfg = cfg
	}
}

// WithTreeOptions bounds tree traversal and extends the manifest allowlist.
func WithTreeOptions(maxDepth int, extraManifests ...string) Option {
	return func(s *Service) {
		s.maxDepth = maxDepth
		s.extraManifests = extraManifests
	}
}

// WithClock replaces the clock used for branch names and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service using gh for hosting calls and agents for
// the pipeline stages.
func NewService(gh *hosting.Client, agents pipeline.AgentCaller, opts ...Option) *Service {
	s := &Service{
		hosting:  gh,
		agents:   agents,
		maxDepth: tree.DefaultMaxDepth,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromConfig wires a Service from configuration.
func NewServiceFromConfig(cfg *config.Config, logger *logging.Logger, opts ...Option) *Service {
	gh := hosting.NewClient(
		hosting.WithBaseURL(cfg.Hosting.BaseURL),
		hosting.WithToken(cfg.Hosting.Token),
		hosting.WithUserAgent(cfg.Hosting.UserAgent),
		hosting.WithTimeout(cfg.Hosting.Timeout()),
	)
	agents := agent.NewClient(cfg.Agents.BaseURL,
		agent.WithTimeout(cfg.Agents.Timeout()),
		agent.WithLogger(logger),
	)

	base := []Option{
		WithLogger(logger),
		WithPipelineConfig(PipelineConfig(cfg)),
		WithPublishConfig(PublishConfig(cfg)),
		WithTreeOptions(cfg.Tree.MaxDepth, cfg.Tree.ExtraManifests...),
	}
	return NewService(gh, agents, append(base, opts...)...)
}

// PipelineConfig maps the agents section to a pipeline configuration.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		UserID:  cfg.Agents.UserID,
		Planner: pipeline.StageConfig{AppName: cfg.Agents.Planner.AppName, Instruction: cfg.Agents.Planner.Instruction},
		Parser:  pipeline.StageConfig{AppName: cfg.Agents.Parser.AppName, Instruction: cfg.Agents.Parser.Instruction},
		Codemod: pipeline.StageConfig{AppName: cfg.Agents.Codemod.AppName, Instruction: cfg.Agents.Codemod.Instruction},
	}
}

// PublishConfig maps the pr section to a publisher configuration.
func PublishConfig(cfg *config.Config) publish.Config {
	return publish.Config{
		BaseBranch:       cfg.PR.BaseBranch,
		BranchPrefix:     cfg.PR.BranchPrefix,
		Labels:           cfg.PR.Labels,
		Draft:            cfg.PR.Draft,
		MigrationDocPath: cfg.PR.MigrationDocPath,
		DefaultReviewers: cfg.PR.Reviewers.Default,
		ReviewersByPath:  cfg.PR.Reviewers.ByPath,
	}
}

// HasToken reports whether a request without its own token can reach the
// hosting platform.
func (s *Service) HasToken() bool {
	return s.hosting.HasToken()
}

// Fetcher returns a tree fetcher authenticated with token.
func (s *Service) Fetcher(token string) *tree.Fetcher {
	return tree.NewFetcher(s.hosting.ForToken(token),
		tree.WithMaxDepth(s.maxDepth),
		tree.WithManifestPatterns(s.extraManifests...),
		tree.WithLogger(s.logger),
	)
}

// FetchTree fetches the tree rooted at path with token, or the configured
// token when empty.
func (s *Service) FetchTree(ctx context.Context, owner, name, path, token string) (*tree.RepositoryNode, error) {
	return s.Fetcher(token).Fetch(ctx, owner, name, path)
}

// Upgrade runs one upgrade. A failure to fetch the tree or a failed stage
// call is returned as an error. A publishing failure is logged and leaves
// Response.PR nil.
func (s *Service) Upgrade(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	runID := ulid.Make().String()
	logger := s.logger.WithRunID(runID).WithRepository(req.Repository())
	gh := s.hosting.ForToken(req.Token)
	logger.Info("upgrade started", "package", req.TargetPackage)

	root := req.Tree
	if root != nil {
		root.Recount()
	} else {
		fetched, err := s.FetchTree(ctx, req.Owner, req.Name, "", req.Token)
		if err != nil {
			logger.Error("tree fetch failed", "error", err)
			return nil, errors.NewStageError("tree", err)
		}
		root = fetched
		logger.Info("fetched repository tree",
			"files", root.TotalFiles, "directories", root.TotalDirectories)
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if s.observer != nil {
		opts = append(opts, pipeline.WithObserver(s.observer))
	}
	result, err := pipeline.NewOrchestrator(s.agents, s.pipelineCfg, opts...).Run(ctx, pipeline.Request{
		Tree:          root,
		TargetPackage: req.TargetPackage,
		RunID:         runID,
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Success:    true,
		RunID:      runID,
		Outcome:    result.Outcome,
		Analysis:   analysisOf(result),
		Repository: req.Repository(),
		Result:     result,
		Tree:       root,
	}

	if result.Complete() && !req.NoPR {
		publisher := publish.NewPublisher(gh, s.publishCfg,
			publish.WithLogger(logger),
			publish.WithClock(s.now),
		)
		pr, err := publisher.Publish(ctx, publish.Request{
			Owner:   req.Owner,
			Repo:    req.Name,
			RunID:   runID,
			Tree:    root,
			Plan:    result.Plan,
			Parse:   result.Parse,
			Codemod: result.Codemod,
		})
		if err != nil {
			logger.Warn("publishing failed, returning analysis only", "error", err)
			resp.PublishError = err.Error()
		} else {
			resp.PR = pr
		}
	}

	resp.Duration = s.now().Sub(start)
	logger.Info("upgrade finished", "outcome", string(resp.Outcome),
		"pr", resp.PR != nil, "duration_ms", resp.Duration.Milliseconds())

	if s.reporter != nil {
		if path, err := s.reporter.Report(resp); err != nil {
			logger.Warn("writing report failed", "error", err)
		} else {
			logger.Debug("wrote report", "path", path)
		}
	}
	return resp, nil
}

func analysisOf(result *pipeline.Result) Analysis {
	var a Analysis
	if result.Plan != nil {
		a.Planner = &result.Plan.Response
	}
	if result.Parse != nil {
		a.Parser = &result.Parse.Response
	}
	if result.Codemod != nil {
		a.Codemod = &result.Codemod.Response
	}
	return a
}
