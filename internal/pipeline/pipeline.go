package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/botdas/internal/agent"
	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/logging"
	"github.com/Iron-Ham/botdas/internal/tree"
)

// Default instructions sent ahead of each stage's inputs.
const (
	DefaultPlannerInstruction = "Determine the current and latest version of target_package in the " +
		"repository described by repo_tree_json. Reply with a JSON object containing target, updates " +
		"and next_agent_instructions."
	DefaultParserInstruction = "Using planner_instructions, find the files in repo_tree_json that the " +
		"upgrade of package_name from current_version to target_version affects. Reply with a JSON " +
		"object containing impacted_files, breaking_changes, recommendations and summary."
	DefaultCodemodInstruction = "Apply the upgrade of package_name from current_version to " +
		"target_version using parser_artifacts. Reply with a JSON object containing status and files, " +
		"where each file has path, content and message."
)

// AgentCaller runs one stage call against a remote agent.
type AgentCaller interface {
	Call(ctx context.Context, inputs any, cfg agent.SessionConfig) (agent.Response, error)
}

// StageConfig selects the agent application for one stage.
type StageConfig struct {
	AppName     string
	Instruction string
}

// Config configures an Orchestrator.
type Config struct {
	// UserID is the identity sessions are created under.
	UserID  string
	Planner StageConfig
	Parser  StageConfig
	Codemod StageConfig
}

func (c Config) defaults() Config {
	if c.UserID == "" {
		c.UserID = "botdas"
	}
	c.Planner = c.Planner.orDefault("planner_botda", DefaultPlannerInstruction)
	c.Parser = c.Parser.orDefault("parser_botda", DefaultParserInstruction)
	c.Codemod = c.Codemod.orDefault("codemod_botda", DefaultCodemodInstruction)
	return c
}

func (s StageConfig) orDefault(app, instruction string) StageConfig {
	if s.AppName == "" {
		s.AppName = app
	}
	if strings.TrimSpace(s.Instruction) == "" {
		s.Instruction = instruction
	}
	return s
}

// Request is the input to one pipeline run.
type Request struct {
	Tree          *tree.RepositoryNode
	TargetPackage string
	// RunID tags log entries; it does not affect session ids.
	RunID string
}

// PlanInput is sent to the planner.
type PlanInput struct {
	TargetPackage string `json:"target_package"`
	RepoTreeJSON  string `json:"repo_tree_json"`
}

// ParseInput is sent to the parser.
type ParseInput struct {
	RepoTreeJSON        string         `json:"repo_tree_json"`
	PackageName         string         `json:"package_name"`
	CurrentVersion      string         `json:"current_version"`
	TargetVersion       string         `json:"target_version"`
	PlannerInstructions map[string]any `json:"planner_instructions"`
}

// CodemodInput is sent to the codemod agent.
type CodemodInput struct {
	RepoTreeJSON    string         `json:"repo_tree_json"`
	ParserArtifacts agent.Response `json:"parser_artifacts"`
	PackageName     string         `json:"package_name"`
	CurrentVersion  string         `json:"current_version"`
	TargetVersion   string         `json:"target_version"`
}

// Orchestrator runs the plan, parse and codemod stages in order.
type Orchestrator struct {
	caller    AgentCaller
	cfg       Config
	logger    *logging.Logger
	observer  Observer
	sessionID func(Stage) string
}

// NewOrchestrator creates an Orchestrator that calls agents through caller.
func NewOrchestrator(caller AgentCaller, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		caller:   caller,
		cfg:      cfg.defaults(),
		logger:   logging.NopLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the pipeline for req. A planner reply without instructions
// ends the run early with OutcomePlanOnly. A transport failure in any stage
// returns a *errors.StageError and no later stage runs.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Tree == nil {
		return nil, errors.NewValidationError("repository tree is required").WithField("tree")
	}
	if strings.TrimSpace(req.TargetPackage) == "" {
		return nil, errors.NewValidationError("target package is required").WithField("targetPackage")
	}

	treeJSON, err := json.Marshal(req.Tree)
	if err != nil {
		return nil, errors.Wrap(err, "encoding repository tree")
	}

	logger := o.logger
	if req.RunID != "" {
		logger = logger.WithRunID(req.RunID)
	}
	sessions := o.sessionIDs()

	// Plan
	planResp, err := o.call(ctx, logger, StagePlan, o.cfg.Planner, sessions, PlanInput{
		TargetPackage: req.TargetPackage,
		RepoTreeJSON:  string(treeJSON),
	})
	if err != nil {
		return nil, err
	}
	plan := DecodePlan(planResp, req.TargetPackage)
	o.completed(logger, StagePlan, plan.Variant, plan.Reason)

	result := &Result{Outcome: OutcomePlanOnly, Plan: plan}
	if !plan.HasInstructions() {
		logger.Info("planner gave no instructions, stopping after plan",
			"variant", plan.Variant.String())
		return result, nil
	}

	// Parse
	parseResp, err := o.call(ctx, logger, StageParse, o.cfg.Parser, sessions, ParseInput{
		RepoTreeJSON:        string(treeJSON),
		PackageName:         plan.Target.Package,
		CurrentVersion:      plan.Target.Current,
		TargetVersion:       plan.Target.Version(),
		PlannerInstructions: plan.RawInstructions,
	})
	if err != nil {
		return nil, err
	}
	result.Parse = DecodeParse(parseResp)
	o.completed(logger, StageParse, result.Parse.Variant, result.Parse.Reason)

	// Codemod
	codemodResp, err := o.call(ctx, logger, StageCodemod, o.cfg.Codemod, sessions, CodemodInput{
		RepoTreeJSON:    string(treeJSON),
		ParserArtifacts: parseResp,
		PackageName:     plan.Target.Package,
		CurrentVersion:  plan.Target.Current,
		TargetVersion:   plan.Target.Version(),
	})
	if err != nil {
		return nil, err
	}
	result.Codemod = DecodeCodemod(codemodResp)
	o.completed(logger, StageCodemod, result.Codemod.Variant, result.Codemod.Reason)

	result.Outcome = OutcomeComplete
	return result, nil
}

// sessionIDs returns one session id per stage for a single run.
func (o *Orchestrator) sessionIDs() map[Stage]string {
	ids := make(map[Stage]string, 3)
	for _, s := range []Stage{StagePlan, StageParse, StageCodemod} {
		if o.sessionID != nil {
			ids[s] = o.sessionID(s)
		} else {
			ids[s] = s.String() + "-" + uuid.NewString()
		}
	}
	return ids
}

func (o *Orchestrator) call(ctx context.Context, logger *logging.Logger, stage Stage, sc StageConfig, sessions map[Stage]string, inputs any) (agent.Response, error) {
	if err := ctx.Err(); err != nil {
		return agent.Response{}, errors.NewStageError(stage.String(), err)
	}

	logger = logger.WithStage(stage.String())
	o.observer.StageStarted(stage)
	logger.Debug("calling agent", "app", sc.AppName, "session_id", sessions[stage])

	resp, err := o.caller.Call(ctx, inputs, agent.SessionConfig{
		AppName:     sc.AppName,
		UserID:      o.cfg.UserID,
		SessionID:   sessions[stage],
		Instruction: sc.Instruction,
	})
	if err != nil {
		logger.Error("agent call failed", "app", sc.AppName, "error", err)
		o.observer.StageCompleted(stage, VariantError, err)
		return agent.Response{}, errors.NewStageError(stage.String(), err)
	}
	return resp, nil
}

func (o *Orchestrator) completed(logger *logging.Logger, stage Stage, v Variant, reason string) {
	logger = logger.WithStage(stage.String())
	if v != VariantOK {
		logger.Warn("stage returned no usable payload", "variant", v.String(), "reason", reason)
	} else if reason != "" {
		logger.Warn("stage completed with ignored fields", "variant", v.String(), "reason", reason)
	} else {
		logger.Info("stage completed", "variant", v.String())
	}
	o.observer.StageCompleted(stage, v, nil)
}
