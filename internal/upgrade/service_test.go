package upgrade

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/botdas/internal/agent"
	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/hosting"
	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/testutil"
	"github.com/Iron-Ham/botdas/internal/tree"
)

const manifest = `{"name":"web","dependencies":{"next":"^13.4.0"}}`

var (
	plannerReply = map[string]any{
		"target": map[string]any{"package": "next", "current": "13.4.0", "latest_exact": "14.2.3"},
		"next_agent_instructions": map[string]any{
			"goal": "upgrade next to 14",
		},
	}
	parserReply = map[string]any{
		"summary": "pages router keeps working",
	}
	codemodReply = map[string]any{
		"status": "ok",
		"files": []any{
			map[string]any{"path": "package.json", "content": `{"name":"web","dependencies":{"next":"^14.2.3"}}`},
			map[string]any{"path": "next.config.js", "content": "module.exports = {}\n"},
		},
	}
)

var fixedNow = time.UnixMilli(1718000000000)

type fixture struct {
	gh     *testutil.FakeGitHub
	agents *testutil.FakeAgents
	svc    *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gh := testutil.NewFakeGitHub(t, "acme", "web", map[string]string{"package.json": manifest})
	agents := testutil.NewFakeAgents(t)
	agents.ReplyJSON("planner_botda", plannerReply)
	agents.ReplyJSON("parser_botda", parserReply)
	agents.ReplyJSON("codemod_botda", codemodReply)

	base := []Option{WithClock(func() time.Time { return fixedNow })}
	svc := NewService(
		hosting.NewClient(hosting.WithBaseURL(gh.URL()), hosting.WithToken("fallback")),
		agent.NewClient(agents.URL()),
		append(base, opts...)...,
	)
	return &fixture{gh: gh, agents: agents, svc: svc}
}

func providedTree() *tree.RepositoryNode {
	content := manifest
	return &tree.RepositoryNode{
		Name:       "web",
		Owner:      "acme",
		Files:      []tree.FileEntry{{Name: "package.json", Path: "package.json", Content: &content}},
		TotalFiles: 1,
	}
}

func TestUpgrade_OpensPullRequest(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, pipeline.OutcomeComplete, resp.Outcome)
	require.NotNil(t, resp.Analysis.Planner)
	require.NotNil(t, resp.Analysis.Parser)
	require.NotNil(t, resp.Analysis.Codemod)

	require.NotNil(t, resp.PR)
	assert.True(t, resp.PR.Success)
	assert.Equal(t, "botdas/upgrade-next-1718000000000", resp.PR.BranchName)
	assert.Equal(t, 2, resp.PR.FilesChanged)

	prs := f.gh.PullRequests()
	require.Len(t, prs, 1)
	assert.Equal(t, "chore(deps): upgrade next from 13.4.0 to 14.2.3", prs[0].Title)
	assert.Equal(t, "main", prs[0].Base)

	content, ok := f.gh.File(resp.PR.BranchName, "package.json")
	require.True(t, ok)
	assert.Contains(t, content, `"next":"^14.2.3"`)
	_, ok = f.gh.File(resp.PR.BranchName, "UPGRADE_MIGRATION.md")
	assert.True(t, ok)
}

func TestUpgrade_ForwardsTargetToLaterStages(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next",
	})
	require.NoError(t, err)

	for _, app := range []string{"parser_botda", "codemod_botda"} {
		runs := f.agents.Runs(app)
		require.Len(t, runs, 1, app)
		assert.Equal(t, "next", runs[0].Inputs["package_name"], app)
		assert.Equal(t, "13.4.0", runs[0].Inputs["current_version"], app)
		assert.Equal(t, "14.2.3", runs[0].Inputs["target_version"], app)
	}
}

func TestUpgrade_CodemodTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.agents.FailRun("codemod_botda", http.StatusBadGateway, "upstream down")

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next",
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "codemod", stageErr.Stage)

	assert.Empty(t, f.gh.PullRequests())
	assert.Equal(t, 0, f.gh.CountRequests(http.MethodPost, "/git/refs"))
}

func TestUpgrade_PlanOnly(t *testing.T) {
	f := newFixture(t)
	f.agents.ReplyJSON("planner_botda", map[string]any{
		"target": map[string]any{"package": "next", "current": "13.4.0", "latest": "14"},
	})

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, pipeline.OutcomePlanOnly, resp.Outcome)
	assert.NotNil(t, resp.Analysis.Planner)
	assert.Nil(t, resp.Analysis.Parser)
	assert.Nil(t, resp.Analysis.Codemod)
	assert.Nil(t, resp.PR)

	assert.Empty(t, f.agents.Runs("parser_botda"))
	assert.Empty(t, f.agents.Runs("codemod_botda"))
	assert.Empty(t, f.gh.PullRequests())
}

func TestUpgrade_BranchCreationFailureKeepsAnalysis(t *testing.T) {
	f := newFixture(t)
	f.gh.FailOn(http.MethodPost, "/git/refs", http.StatusUnprocessableEntity, "Reference already exists")

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Nil(t, resp.PR)
	assert.Contains(t, resp.PublishError, "create branch")
	assert.NotNil(t, resp.Analysis.Codemod)
	assert.Empty(t, f.gh.PullRequests())
}

func TestUpgrade_NoPR(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next", NoPR: true,
	})
	require.NoError(t, err)

	assert.Equal(t, pipeline.OutcomeComplete, resp.Outcome)
	assert.Nil(t, resp.PR)
	assert.Empty(t, resp.PublishError)
	assert.Equal(t, []string{"main"}, f.gh.Branches())
}

func TestUpgrade_FetchesTreeWhenMissing(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", TargetPackage: "next", Token: "per-request",
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Tree)
	assert.Equal(t, 1, resp.Tree.TotalFiles)
	entry, ok := resp.Tree.File("package.json")
	require.True(t, ok)
	require.NotNil(t, entry.Content)
	assert.Equal(t, manifest, *entry.Content)

	for _, r := range f.gh.Requests() {
		assert.Equal(t, "Bearer per-request", r.Authorization, r.Path)
	}
}

func TestUpgrade_RecountsSuppliedTree(t *testing.T) {
	f := newFixture(t)
	supplied := providedTree()
	supplied.TotalFiles = 40
	supplied.TotalDirectories = 9

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: supplied, TargetPackage: "next", NoPR: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Tree.TotalFiles)
	assert.Equal(t, 0, resp.Tree.TotalDirectories)

	runs := f.agents.Runs("planner_botda")
	require.Len(t, runs, 1)
	var sent tree.RepositoryNode
	require.NoError(t, json.Unmarshal([]byte(runs[0].Inputs["repo_tree_json"].(string)), &sent))
	assert.Equal(t, 1, sent.TotalFiles)
	assert.Equal(t, 0, sent.TotalDirectories)
}

func TestUpgrade_TreeFetchFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "missing", TargetPackage: "next",
	})
	require.Error(t, err)

	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "tree", stageErr.Stage)
	assert.Empty(t, f.agents.Runs(""))
}

func TestUpgrade_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "owner", req: Request{Name: "web", TargetPackage: "next"}, field: "owner"},
		{name: "name", req: Request{Owner: "acme", TargetPackage: "next"}, field: "name"},
		{name: "package", req: Request{Owner: "acme", Name: "web", TargetPackage: "  "}, field: "targetPackage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upgrade(context.Background(), tt.req)
			var vErr *errors.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Empty(t, f.gh.Requests())
}

type captureReporter struct {
	mu    sync.Mutex
	calls []*Response
}

func (c *captureReporter) Report(resp *Response) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, resp)
	return "report-" + resp.RunID + ".json", nil
}

func TestUpgrade_Reports(t *testing.T) {
	rep := &captureReporter{}
	f := newFixture(t, WithReporter(rep))

	resp, err := f.svc.Upgrade(context.Background(), Request{
		Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next", NoPR: true,
	})
	require.NoError(t, err)

	require.Len(t, rep.calls, 1)
	assert.Same(t, resp, rep.calls[0])
	assert.Equal(t, "acme/web", rep.calls[0].Repository)
}

func TestDashboard_IsolatesFailures(t *testing.T) {
	f := newFixture(t)

	reqs := []Request{
		{Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next", NoPR: true},
		{Owner: "acme", Name: "missing", TargetPackage: "next", NoPR: true},
		{Owner: "acme", Name: "web", TargetPackage: "next", NoPR: true},
	}
	entries := f.svc.Dashboard(context.Background(), reqs, 2)
	require.Len(t, entries, 3)

	assert.False(t, entries[0].Failed())
	require.NotNil(t, entries[0].Response)
	assert.Equal(t, pipeline.OutcomeComplete, entries[0].Response.Outcome)

	assert.True(t, entries[1].Failed())
	assert.Equal(t, "missing", entries[1].Name)
	assert.Nil(t, entries[1].Response)
	assert.True(t, strings.Contains(entries[1].Error, "tree"), entries[1].Error)

	assert.False(t, entries[2].Failed())
	assert.Equal(t, "web", entries[2].Name)

	assert.Len(t, f.agents.Runs("codemod_botda"), 2)
}

func TestDashboard_DefaultParallel(t *testing.T) {
	f := newFixture(t)
	entries := f.svc.Dashboard(context.Background(), []Request{
		{Owner: "acme", Name: "web", Tree: providedTree(), TargetPackage: "next", NoPR: true},
	}, 0)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Failed())
}
