package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/botdas/internal/agent"
	"github.com/Iron-Ham/botdas/internal/testutil"
)

// reply builds the Response an agent would produce for v.
func reply(t *testing.T, v any) agent.Response {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	resp := agent.Extract([]byte(testutil.TurnsBody("Result:\n" + string(payload))))
	require.Equal(t, agent.KindJSON, resp.Kind)
	return resp
}

func TestDecodePlan(t *testing.T) {
	t.Run("full plan", func(t *testing.T) {
		resp := reply(t, map[string]any{
			"target": map[string]any{"package": "next", "current": "13.4.0", "latest": "^14", "latest_exact": "14.2.3"},
			"updates": []any{
				map[string]any{"package": "eslint-config-next", "from": "13.4.0", "to": "14.2.3", "reason": "peer"},
			},
			"next_agent_instructions": map[string]any{
				"goal":                  "upgrade next",
				"files_likely_affected": []any{"next.config.js"},
				"extra":                 "kept raw",
			},
		})

		plan := DecodePlan(resp, "next")
		require.Equal(t, VariantOK, plan.Variant, plan.Reason)
		assert.Equal(t, Target{Package: "next", Current: "13.4.0", Latest: "^14", LatestExact: "14.2.3"}, plan.Target)
		require.Len(t, plan.Updates, 1)
		assert.Equal(t, "eslint-config-next", plan.Updates[0].Package)
		assert.True(t, plan.HasInstructions())
		require.NotNil(t, plan.Instructions)
		assert.Equal(t, "upgrade next", plan.Instructions.Goal)
		assert.Equal(t, []string{"next.config.js"}, plan.Instructions.FilesLikelyAffected)
		assert.Equal(t, "kept raw", plan.RawInstructions["extra"])
		assert.Equal(t, resp, plan.Response)
	})

	t.Run("no instructions", func(t *testing.T) {
		plan := DecodePlan(reply(t, map[string]any{
			"target": map[string]any{"package": "next", "current": "14.2.3", "latest_exact": "14.2.3"},
		}), "next")
		require.Equal(t, VariantOK, plan.Variant)
		assert.False(t, plan.HasInstructions())
		assert.Nil(t, plan.Instructions)
	})

	t.Run("numeric versions become strings", func(t *testing.T) {
		plan := DecodePlan(reply(t, map[string]any{
			"target": map[string]any{"package": "react", "current": 17, "latest_exact": 18},
		}), "react")
		require.Equal(t, VariantOK, plan.Variant, plan.Reason)
		assert.Equal(t, "17", plan.Target.Current)
		assert.Equal(t, "18", plan.Target.Version())
	})

	t.Run("hand built object with float versions", func(t *testing.T) {
		resp := agent.Response{Kind: agent.KindJSON, Object: map[string]any{
			"target": map[string]any{"package": "react", "current": float64(17), "latest_exact": 18.1},
		}}
		plan := DecodePlan(resp, "react")
		require.Equal(t, VariantOK, plan.Variant, plan.Reason)
		assert.Equal(t, "17", plan.Target.Current)
		assert.Equal(t, "18.1", plan.Target.LatestExact)
	})

	t.Run("untyped instructions stay raw", func(t *testing.T) {
		plan := DecodePlan(reply(t, map[string]any{
			"target":                  map[string]any{"package": "next", "latest_exact": "14.0.0"},
			"next_agent_instructions": map[string]any{"checks": "run the build"},
		}), "next")
		require.Equal(t, VariantOK, plan.Variant)
		require.NotNil(t, plan.Instructions)
		assert.Empty(t, plan.Instructions.Checks)
		assert.Equal(t, "run the build", plan.RawInstructions["checks"])
	})

	t.Run("actions shape", func(t *testing.T) {
		plan := DecodePlan(reply(t, map[string]any{
			"overview": "two packages",
			"actions": []any{
				map[string]any{"package": "@types/react", "current": "17.0.0", "target": "^18", "rationale": "types"},
				map[string]any{"package": "react", "current": "17.0.2", "target": "^18", "latest_exact": "18.3.1"},
			},
			"instructions": map[string]any{"parser": map[string]any{"search_terms": []any{"ReactDOM.render"}}},
		}), "react")

		require.Equal(t, VariantOK, plan.Variant, plan.Reason)
		assert.Equal(t, Target{Package: "react", Current: "17.0.2", Latest: "^18", LatestExact: "18.3.1"}, plan.Target)
		require.Len(t, plan.Updates, 1)
		assert.Equal(t, Update{Package: "@types/react", From: "17.0.0", To: "^18", Reason: "types"}, plan.Updates[0])
		assert.True(t, plan.HasInstructions())
		assert.Contains(t, plan.RawInstructions, "parser")
	})

	t.Run("malformed updates do not block instructions", func(t *testing.T) {
		tests := []struct {
			name    string
			updates any
			kept    int
			note    string
		}{
			{
				name: "string citations",
				updates: []any{
					map[string]any{"package": "eslint-config-next", "to": "14.2.0", "citations": "see release notes"},
					map[string]any{"package": "@next/font", "to": "14.2.0"},
				},
				kept: 1,
				note: "updates[0]",
			},
			{name: "object", updates: map[string]any{"package": "eslint-config-next"}, note: "expected a list"},
			{name: "string", updates: "none", note: "expected a list"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				plan := DecodePlan(reply(t, map[string]any{
					"target":                  map[string]any{"package": "next", "current": "13.0.0", "latest_exact": "14.2.0"},
					"updates":                 tt.updates,
					"next_agent_instructions": map[string]any{"goal": "upgrade"},
				}), "next")
				require.Equal(t, VariantOK, plan.Variant, plan.Reason)
				assert.True(t, plan.HasInstructions())
				assert.Equal(t, "14.2.0", plan.Target.Version())
				assert.Len(t, plan.Updates, tt.kept)
				assert.Contains(t, plan.Reason, tt.note)
			})
		}
	})

	fallbacks := []struct {
		name   string
		object map[string]any
	}{
		{"missing target", map[string]any{"updates": []any{}}},
		{"blank package", map[string]any{"target": map[string]any{"package": "  "}}},
		{"target is a string", map[string]any{"target": "next"}},
		{"instructions without version", map[string]any{
			"target":                  map[string]any{"package": "next"},
			"next_agent_instructions": map[string]any{"goal": "x"},
		}},
	}
	for _, tt := range fallbacks {
		t.Run(tt.name, func(t *testing.T) {
			plan := DecodePlan(reply(t, tt.object), "next")
			assert.Equal(t, VariantFallback, plan.Variant)
			assert.Contains(t, plan.Reason, "plan schema")
			assert.False(t, plan.HasInstructions())
		})
	}

	t.Run("text reply", func(t *testing.T) {
		plan := DecodePlan(agent.Extract([]byte(testutil.TurnsBody("I could not find next."))), "next")
		assert.Equal(t, VariantFallback, plan.Variant)
		assert.Equal(t, agent.KindText, plan.Response.Kind)
	})

	t.Run("unrecognized reply", func(t *testing.T) {
		plan := DecodePlan(agent.Extract([]byte(`<html></html>`)), "next")
		assert.Equal(t, VariantError, plan.Variant)
		assert.NotEmpty(t, plan.Reason)
	})
}

func TestDecodeParse(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		parse := DecodeParse(reply(t, map[string]any{
			"impacted_files": []any{
				map[string]any{"path": "pages/_app.tsx", "reason": "uses next/router", "usages": []any{"useRouter"}},
			},
			"breaking_changes": []any{"next/router moved"},
			"summary":          "one file",
		}))
		require.Equal(t, VariantOK, parse.Variant, parse.Reason)
		assert.Equal(t, []ImpactedFile{{Path: "pages/_app.tsx", Reason: "uses next/router", Usages: []string{"useRouter"}}}, parse.ImpactedFiles)
		assert.Equal(t, []string{"next/router moved"}, parse.BreakingChanges)
		assert.Equal(t, "one file", parse.Summary)
	})

	t.Run("impacted file without path", func(t *testing.T) {
		parse := DecodeParse(reply(t, map[string]any{
			"impacted_files": []any{map[string]any{"reason": "?"}},
		}))
		assert.Equal(t, VariantFallback, parse.Variant)
		assert.Contains(t, parse.Reason, "impacted_files[0].path")
	})

	t.Run("wrong type", func(t *testing.T) {
		parse := DecodeParse(reply(t, map[string]any{"summary": []any{"a"}}))
		assert.Equal(t, VariantFallback, parse.Variant)
	})
}

func TestDecodeCodemod(t *testing.T) {
	t.Run("files shape", func(t *testing.T) {
		codemod := DecodeCodemod(reply(t, map[string]any{
			"status": "ok",
			"files": []any{
				map[string]any{"path": "package.json", "content": "{}", "message": "bump next"},
				map[string]any{"path": "README.md"},
				map[string]any{"path": "", "content": "orphan"},
			},
		}))
		require.Equal(t, VariantOK, codemod.Variant, codemod.Reason)
		assert.Equal(t, "ok", codemod.Status)
		assert.Len(t, codemod.Files, 3)
		assert.Equal(t, []FileChange{{Path: "package.json", Content: "{}", Message: "bump next"}}, codemod.UsableFiles())
	})

	t.Run("diffs shape", func(t *testing.T) {
		codemod := DecodeCodemod(reply(t, map[string]any{
			"status":        "preview",
			"files_changed": []any{"package.json", "next.config.js"},
			"diffs":         []any{map[string]any{"file": "package.json", "patch": "-13\n+14"}},
			"preview":       []any{map[string]any{"file": "next.config.js", "patch": "..."}},
		}))
		require.Equal(t, VariantOK, codemod.Variant, codemod.Reason)
		assert.Equal(t, []string{"package.json", "next.config.js"}, codemod.ChangedPaths)
		assert.Len(t, codemod.Diffs, 2)
		assert.Equal(t, 2, codemod.DiffCount)
		assert.Empty(t, codemod.UsableFiles())
	})

	t.Run("explicit diff count", func(t *testing.T) {
		codemod := DecodeCodemod(reply(t, map[string]any{"diff_count": 7}))
		require.Equal(t, VariantOK, codemod.Variant)
		assert.Equal(t, 7, codemod.DiffCount)
	})

	t.Run("files is not a list", func(t *testing.T) {
		codemod := DecodeCodemod(reply(t, map[string]any{"files": "package.json"}))
		assert.Equal(t, VariantFallback, codemod.Variant)
		assert.Nil(t, codemod.UsableFiles())
	})

	t.Run("text reply", func(t *testing.T) {
		codemod := DecodeCodemod(agent.Extract([]byte(testutil.TurnsBody("Nothing to change."))))
		assert.Equal(t, VariantFallback, codemod.Variant)
		assert.Nil(t, codemod.UsableFiles())
	})

	t.Run("nil result", func(t *testing.T) {
		var codemod *CodemodResult
		assert.Nil(t, codemod.UsableFiles())
	})
}
