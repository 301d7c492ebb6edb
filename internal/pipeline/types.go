package pipeline

import (
	"github.com/Iron-Ham/botdas/internal/agent"
)

// Stage represents a stage of the upgrade pipeline.
type Stage string

const (
	// StagePlan asks the planner for the target version and instructions.
	StagePlan Stage = "plan"

	// StageParse asks the parser which files the upgrade impacts.
	StageParse Stage = "parse"

	// StageCodemod asks the codemod agent for concrete file changes.
	StageCodemod Stage = "codemod"

	// StageDone indicates the pipeline finished.
	StageDone Stage = "done"

	// StageFailed indicates a stage call failed.
	StageFailed Stage = "failed"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsTerminal returns true if this stage represents a final state.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s.
func (s Stage) Next() Stage {
	switch s {
	case StagePlan:
		return StageParse
	case StageParse:
		return StageCodemod
	case StageCodemod:
		return StageDone
	default:
		return s
	}
}

// Variant discriminates stage results.
type Variant int

const (
	// VariantOK means the agent returned JSON that passed validation.
	VariantOK Variant = iota
	// VariantFallback means the agent replied but not with a usable payload.
	VariantFallback
	// VariantError means the reply could not be interpreted at all.
	VariantError
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantOK:
		return "ok"
	case VariantFallback:
		return "fallback"
	case VariantError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Outcome describes how far a run got.
type Outcome string

const (
	// OutcomePlanOnly means the planner gave no instructions, so only the
	// plan is populated.
	OutcomePlanOnly Outcome = "plan_only"

	// OutcomeComplete means all three stages ran.
	OutcomeComplete Outcome = "complete"
)

// Target is the package the planner resolved.
type Target struct {
	Package string `mapstructure:"package" json:"package"`
	Current string `mapstructure:"current" json:"current"`
	// Latest may be a range such as "^14" or the word "latest".
	Latest      string `mapstructure:"latest" json:"latest,omitempty"`
	LatestExact string `mapstructure:"latest_exact" json:"latest_exact"`
}

// Version returns the exact target version when known, otherwise Latest.
func (t Target) Version() string {
	if t.LatestExact != "" {
		return t.LatestExact
	}
	return t.Latest
}

// Citation is a source the planner relied on.
type Citation struct {
	Title string `mapstructure:"title" json:"title"`
	Link  string `mapstructure:"link" json:"link"`
}

// Update is a companion package change the planner recommends.
type Update struct {
	Package   string     `mapstructure:"package" json:"package"`
	From      string     `mapstructure:"from" json:"from"`
	To        string     `mapstructure:"to" json:"to"`
	Reason    string     `mapstructure:"reason" json:"reason,omitempty"`
	Citations []Citation `mapstructure:"citations" json:"citations,omitempty"`
}

// Instructions are the planner's directions to the later stages.
type Instructions struct {
	Goal                string   `mapstructure:"goal" json:"goal"`
	FilesLikelyAffected []string `mapstructure:"files_likely_affected" json:"files_likely_affected,omitempty"`
	Checks              []string `mapstructure:"checks" json:"checks,omitempty"`
	SearchTerms         []string `mapstructure:"search_terms" json:"search_terms,omitempty"`
	BuildAndTestPlan    []string `mapstructure:"build_and_test_plan" json:"build_and_test_plan,omitempty"`
	Assumptions         []string `mapstructure:"assumptions" json:"assumptions,omitempty"`
}

// PlanResult is the decoded planner output.
type PlanResult struct {
	Variant Variant
	// Reason explains a fallback or error variant. On VariantOK it lists
	// companion updates that were dropped.
	Reason  string
	Target  Target
	Updates []Update
	// Instructions is nil when the planner gave none.
	Instructions *Instructions
	// RawInstructions preserves the planner's instructions verbatim for the
	// next stage.
	RawInstructions map[string]any
	Response        agent.Response
}

// HasInstructions reports whether the pipeline should continue past planning.
func (p *PlanResult) HasInstructions() bool {
	return p != nil && p.Variant == VariantOK && p.RawInstructions != nil
}

// ImpactedFile is a file the parser expects the upgrade to touch.
type ImpactedFile struct {
	Path   string   `mapstructure:"path" json:"path"`
	Reason string   `mapstructure:"reason" json:"reason,omitempty"`
	Usages []string `mapstructure:"usages" json:"usages,omitempty"`
}

// ParseResult is the decoded parser output.
type ParseResult struct {
	Variant         Variant
	Reason          string
	ImpactedFiles   []ImpactedFile
	BreakingChanges []string
	Recommendations []string
	Summary         string
	Response        agent.Response
}

// FileChange is a proposed file write.
type FileChange struct {
	Path    string `mapstructure:"path" json:"path"`
	Content string `mapstructure:"content" json:"content"`
	Message string `mapstructure:"message" json:"message,omitempty"`
}

// Diff is a previewed patch for one file.
type Diff struct {
	File  string `mapstructure:"file" json:"file"`
	Patch string `mapstructure:"patch" json:"patch"`
}

// CodemodResult is the decoded codemod output.
type CodemodResult struct {
	Variant Variant
	Reason  string
	Status  string
	Files   []FileChange
	// ChangedPaths lists paths the agent reports changing without content.
	ChangedPaths []string
	Diffs        []Diff
	DiffCount    int
	Response     agent.Response
}

// Result is the outcome of a pipeline run.
type Result struct {
	Outcome Outcome
	Plan    *PlanResult
	Parse   *ParseResult
	Codemod *CodemodResult
}

// Complete reports whether every stage ran.
func (r *Result) Complete() bool {
	return r != nil && r.Outcome == OutcomeComplete
}
