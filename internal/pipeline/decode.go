package pipeline

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/Iron-Ham/botdas/internal/agent"
)

// stringHook lets numeric version fields such as 14 or 2.0 decode as strings.
func stringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int64, reflect.Float32, reflect.Float64, reflect.Bool:
		return cast.ToStringE(data)
	default:
		return data, nil
	}
}

// decodeStrict decodes input into out, rejecting type mismatches.
func decodeStrict(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringHook,
		Result:     out,
		TagName:    "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// variantFor maps a non-JSON response to its variant.
func variantFor(resp agent.Response) (Variant, string) {
	switch resp.Kind {
	case agent.KindText:
		return VariantFallback, "agent replied without a JSON object"
	case agent.KindError:
		return VariantError, resp.Error
	default:
		return VariantOK, ""
	}
}

// planPayload holds the fields that decide whether the run continues.
// Companion updates and the older actions list are decoded separately so a
// malformed entry there cannot end the run early.
type planPayload struct {
	Target                Target         `mapstructure:"target"`
	NextAgentInstructions map[string]any `mapstructure:"next_agent_instructions"`
	Updates               any            `mapstructure:"updates"`

	// Older planners report per-package actions and a per-agent
	// instructions block instead.
	Actions      any            `mapstructure:"actions"`
	Instructions map[string]any `mapstructure:"instructions"`
}

type planAction struct {
	Package     string     `mapstructure:"package"`
	Current     string     `mapstructure:"current"`
	Target      string     `mapstructure:"target"`
	LatestExact string     `mapstructure:"latest_exact"`
	Rationale   string     `mapstructure:"rationale"`
	Citations   []Citation `mapstructure:"citations"`
}

// decodeEach decodes every element of the list raw into T. Elements that do
// not fit are skipped and described in the returned notes.
func decodeEach[T any](field string, raw any) ([]T, []string) {
	if raw == nil {
		return nil, nil
	}
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, []string{fmt.Sprintf("%s: expected a list, got %T", field, raw)}
	}

	var (
		out   []T
		notes []string
	)
	for i := 0; i < v.Len(); i++ {
		var item T
		if err := decodeStrict(v.Index(i).Interface(), &item); err != nil {
			notes = append(notes, fmt.Sprintf("%s[%d]: %v", field, i, err))
			continue
		}
		out = append(out, item)
	}
	return out, notes
}

// fromActions folds the actions shape into a target and companion updates.
func fromActions(actions []planAction, targetPackage string) (Target, []Update) {
	chosen := 0
	for i, a := range actions {
		if strings.EqualFold(a.Package, targetPackage) {
			chosen = i
			break
		}
	}

	var (
		target  Target
		updates []Update
	)
	for i, a := range actions {
		if i == chosen {
			target = Target{
				Package:     a.Package,
				Current:     a.Current,
				Latest:      a.Target,
				LatestExact: a.LatestExact,
			}
			continue
		}
		to := a.LatestExact
		if to == "" {
			to = a.Target
		}
		updates = append(updates, Update{
			Package:   a.Package,
			From:      a.Current,
			To:        to,
			Reason:    a.Rationale,
			Citations: a.Citations,
		})
	}
	return target, updates
}

// DecodePlan validates a planner response for targetPackage.
// A target package is always required; a target version is required when
// instructions are present since the later stages need it. Companion
// updates that do not fit are dropped and noted in Reason.
func DecodePlan(resp agent.Response, targetPackage string) *PlanResult {
	result := &PlanResult{Response: resp}
	if v, reason := variantFor(resp); v != VariantOK {
		result.Variant, result.Reason = v, reason
		return result
	}

	var payload planPayload
	if err := decodeStrict(resp.Object, &payload); err != nil {
		return planFallback(result, fmt.Sprintf("plan schema: %v", err))
	}
	if payload.NextAgentInstructions == nil && payload.Instructions != nil {
		payload.NextAgentInstructions = payload.Instructions
	}

	updates, notes := decodeEach[Update]("updates", payload.Updates)
	if payload.Target.Package == "" {
		actions, actionNotes := decodeEach[planAction]("actions", payload.Actions)
		notes = append(notes, actionNotes...)
		if len(actions) > 0 {
			target, extra := fromActions(actions, targetPackage)
			payload.Target = target
			updates = append(updates, extra...)
		}
	}

	payload.Target.Package = strings.TrimSpace(payload.Target.Package)
	if payload.Target.Package == "" {
		return planFallback(result, "plan schema: target.package is required")
	}
	if payload.NextAgentInstructions != nil && payload.Target.Version() == "" {
		return planFallback(result, "plan schema: target.latest_exact is required with next_agent_instructions")
	}

	result.Variant = VariantOK
	if len(notes) > 0 {
		result.Reason = "ignored: " + strings.Join(notes, "; ")
	}
	result.Target = payload.Target
	result.Updates = updates
	if payload.NextAgentInstructions != nil {
		result.RawInstructions = payload.NextAgentInstructions

		// The instruction shape varies between planner versions; typed
		// fields are filled when they match and left empty otherwise.
		var instr Instructions
		if err := decodeStrict(payload.NextAgentInstructions, &instr); err != nil {
			instr = Instructions{}
		}
		result.Instructions = &instr
	}
	return result
}

func planFallback(result *PlanResult, reason string) *PlanResult {
	result.Variant = VariantFallback
	result.Reason = reason
	return result
}

type parsePayload struct {
	ImpactedFiles   []ImpactedFile `mapstructure:"impacted_files"`
	BreakingChanges []string       `mapstructure:"breaking_changes"`
	Recommendations []string       `mapstructure:"recommendations"`
	Summary         string         `mapstructure:"summary"`
}

// DecodeParse validates a parser response.
func DecodeParse(resp agent.Response) *ParseResult {
	result := &ParseResult{Response: resp}
	if v, reason := variantFor(resp); v != VariantOK {
		result.Variant, result.Reason = v, reason
		return result
	}

	var payload parsePayload
	if err := decodeStrict(resp.Object, &payload); err != nil {
		result.Variant = VariantFallback
		result.Reason = fmt.Sprintf("parse schema: %v", err)
		return result
	}
	for i, f := range payload.ImpactedFiles {
		if strings.TrimSpace(f.Path) == "" {
			result.Variant = VariantFallback
			result.Reason = fmt.Sprintf("parse schema: impacted_files[%d].path is required", i)
			return result
		}
	}

	result.Variant = VariantOK
	result.ImpactedFiles = payload.ImpactedFiles
	result.BreakingChanges = payload.BreakingChanges
	result.Recommendations = payload.Recommendations
	result.Summary = payload.Summary
	return result
}

type codemodPayload struct {
	Status       string       `mapstructure:"status"`
	Files        []FileChange `mapstructure:"files"`
	FilesChanged []string     `mapstructure:"files_changed"`
	Diffs        []Diff       `mapstructure:"diffs"`
	Preview      []Diff       `mapstructure:"preview"`
	DiffCount    int          `mapstructure:"diff_count"`
}

// DecodeCodemod validates a codemod response. Both the files[] shape and the
// diffs/preview/files_changed shape are accepted.
func DecodeCodemod(resp agent.Response) *CodemodResult {
	result := &CodemodResult{Response: resp}
	if v, reason := variantFor(resp); v != VariantOK {
		result.Variant, result.Reason = v, reason
		return result
	}

	var payload codemodPayload
	if err := decodeStrict(resp.Object, &payload); err != nil {
		result.Variant = VariantFallback
		result.Reason = fmt.Sprintf("codemod schema: %v", err)
		return result
	}

	diffs := append(payload.Diffs, payload.Preview...)
	diffCount := payload.DiffCount
	if diffCount == 0 {
		diffCount = len(diffs)
	}

	result.Variant = VariantOK
	result.Status = payload.Status
	result.Files = payload.Files
	result.ChangedPaths = payload.FilesChanged
	result.Diffs = diffs
	result.DiffCount = diffCount
	return result
}

// UsableFiles returns the proposed changes that carry both a path and content.
func (c *CodemodResult) UsableFiles() []FileChange {
	if c == nil || c.Variant != VariantOK {
		return nil
	}
	var files []FileChange
	for _, f := range c.Files {
		if strings.TrimSpace(f.Path) != "" && f.Content != "" {
			files = append(files, f)
		}
	}
	return files
}
