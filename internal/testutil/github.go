package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakePullRequest is a pull request opened against a FakeGitHub.
type FakePullRequest struct {
	Number    int
	Title     string
	Head      string
	Base      string
	Body      string
	Draft     bool
	Labels    []string
	Reviewers []string
}

// FakeGitHub is an in-memory GitHub REST API serving a single repository.
type FakeGitHub struct {
	Owner string
	Repo  string

	server   *httptest.Server
	failures failures

	mu            sync.Mutex
	defaultBranch string
	branches      map[string]map[string]string // branch -> path -> content
	requests      []RecordedRequest
	pulls         []*FakePullRequest
}

// NewFakeGitHub starts a fake serving owner/repo with files on branch "main".
// The server is closed when the test completes.
func NewFakeGitHub(t testing.TB, owner, repo string, files map[string]string) *FakeGitHub {
	t.Helper()

	main := make(map[string]string, len(files))
	for p, c := range files {
		main[strings.Trim(p, "/")] = c
	}

	f := &FakeGitHub{
		Owner:         owner,
		Repo:          repo,
		defaultBranch: "main",
		branches:      map[string]map[string]string{"main": main},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}", f.handleRepository)
	mux.HandleFunc("GET /repos/{owner}/{repo}/branches/{branch...}", f.handleBranch)
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", f.handleCreateRef)
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents", f.handleGetContents)
	mux.HandleFunc("GET /repos/{owner}/{repo}/contents/{path...}", f.handleGetContents)
	mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", f.handlePutContents)
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls", f.handleCreatePull)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/labels", f.handleLabels)
	mux.HandleFunc("POST /repos/{owner}/{repo}/pulls/{number}/requested_reviewers", f.handleReviewers)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		f.mu.Unlock()

		if rule, ok := f.failures.match(r); ok {
			writeMessage(w, rule.status, rule.body)
			return
		}
		if !servesRepo(r.URL.Path, owner, repo) {
			writeMessage(w, http.StatusNotFound, "Not Found")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	return f
}

// URL returns the API root.
func (f *FakeGitHub) URL() string {
	return f.server.URL
}

// FailOn makes requests with method whose path contains pattern fail with
// status. An empty method matches any method.
func (f *FakeGitHub) FailOn(method, pattern string, status int, message string) {
	f.failures.add(method, pattern, status, message)
}

// Requests returns every request received so far.
func (f *FakeGitHub) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// CountRequests counts requests with method whose path contains pattern.
func (f *FakeGitHub) CountRequests(method, pattern string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && strings.Contains(r.Path, pattern) {
			n++
		}
	}
	return n
}

// Branches returns the branch names in sorted order.
func (f *FakeGitHub) Branches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.branches))
	for name := range f.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File returns the content of path on branch.
func (f *FakeGitHub) File(branch, p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.branches[branch]
	if !ok {
		return "", false
	}
	content, ok := files[p]
	return content, ok
}

// PullRequests returns the pull requests opened so far.
func (f *FakeGitHub) PullRequests() []FakePullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakePullRequest, 0, len(f.pulls))
	for _, pr := range f.pulls {
		out = append(out, *pr)
	}
	return out
}

// servesRepo reports whether urlPath addresses owner/repo.
func servesRepo(urlPath, owner, repo string) bool {
	root := "/repos/" + owner + "/" + repo
	return urlPath == root || strings.HasPrefix(urlPath, root+"/")
}

func branchSHA(branch string) string {
	return blobSHA("branch:" + branch)
}

func (f *FakeGitHub) handleRepository(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           f.Repo,
		"full_name":      f.Owner + "/" + f.Repo,
		"default_branch": f.defaultBranch,
	})
}

func (f *FakeGitHub) handleBranch(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	f.mu.Lock()
	_, ok := f.branches[branch]
	f.mu.Unlock()

	if !ok {
		writeMessage(w, http.StatusNotFound, "Branch not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   branch,
		"commit": map[string]string{"sha": branchSHA(branch)},
	})
}

func (f *FakeGitHub) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !strings.HasPrefix(req.Ref, "refs/heads/") {
		writeMessage(w, http.StatusUnprocessableEntity, "Invalid request")
		return
	}
	name := strings.TrimPrefix(req.Ref, "refs/heads/")

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.branches[name]; exists {
		writeMessage(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}
	for branch, files := range f.branches {
		if branchSHA(branch) != req.SHA {
			continue
		}
		copied := make(map[string]string, len(files))
		for p, c := range files {
			copied[p] = c
		}
		f.branches[name] = copied
		writeJSON(w, http.StatusCreated, map[string]any{
			"ref":    req.Ref,
			"object": map[string]string{"sha": branchSHA(name)},
		})
		return
	}
	writeMessage(w, http.StatusUnprocessableEntity, "Object does not exist")
}

func (f *FakeGitHub) handleGetContents(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(r.PathValue("path"), "/")
	ref := r.URL.Query().Get("ref")

	f.mu.Lock()
	defer f.mu.Unlock()

	if ref == "" {
		ref = f.defaultBranch
	}
	files, ok := f.branches[ref]
	if !ok {
		writeMessage(w, http.StatusNotFound, "No commit found for the ref "+ref)
		return
	}

	if content, ok := files[p]; ok && p != "" {
		writeJSON(w, http.StatusOK, fileItem(p, content, true))
		return
	}

	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	seenDirs := make(map[string]bool)
	var items []map[string]any
	for filePath, content := range files {
		if !strings.HasPrefix(filePath, prefix) {
			continue
		}
		rest := strings.TrimPrefix(filePath, prefix)
		if dir, _, nested := strings.Cut(rest, "/"); nested {
			if !seenDirs[dir] {
				seenDirs[dir] = true
				items = append(items, map[string]any{
					"type": "dir",
					"name": dir,
					"path": prefix + dir,
					"sha":  blobSHA("dir:" + prefix + dir),
					"size": 0,
				})
			}
			continue
		}
		items = append(items, fileItem(filePath, content, false))
	}

	if len(items) == 0 && p != "" {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i]["path"].(string) < items[j]["path"].(string)
	})
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, items)
}

func fileItem(p, content string, withBody bool) map[string]any {
	item := map[string]any{
		"type": "file",
		"name": path.Base(p),
		"path": p,
		"sha":  blobSHA(content),
		"size": len(content),
	}
	if withBody {
		encoded := base64.StdEncoding.EncodeToString([]byte(content))
		// GitHub wraps base64 at 60 columns.
		var wrapped strings.Builder
		for len(encoded) > 60 {
			wrapped.WriteString(encoded[:60])
			wrapped.WriteString("\n")
			encoded = encoded[60:]
		}
		wrapped.WriteString(encoded)
		item["content"] = wrapped.String()
		item["encoding"] = "base64"
	}
	return item
}

func (f *FakeGitHub) handlePutContents(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(r.PathValue("path"), "/")

	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	branch := req.Branch
	if branch == "" {
		branch = f.defaultBranch
	}
	files, ok := f.branches[branch]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Branch not found")
		return
	}

	status := http.StatusCreated
	if existing, exists := files[p]; exists {
		if req.SHA == "" {
			writeMessage(w, http.StatusUnprocessableEntity, `Invalid request. "sha" wasn't supplied.`)
			return
		}
		if req.SHA != blobSHA(existing) {
			writeMessage(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", p, req.SHA))
			return
		}
		status = http.StatusOK
	}
	files[p] = string(decoded)

	writeJSON(w, status, map[string]any{
		"content": map[string]string{"path": p, "sha": blobSHA(string(decoded))},
		"commit":  map[string]string{"sha": blobSHA("commit:" + req.Message + p)},
	})
}

func (f *FakeGitHub) handleCreatePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string   `json:"title"`
		Head   string   `json:"head"`
		Base   string   `json:"base"`
		Body   string   `json:"body"`
		Draft  bool     `json:"draft"`
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.branches[req.Head]; !ok {
		writeMessage(w, http.StatusUnprocessableEntity, "Validation Failed: head")
		return
	}
	pr := &FakePullRequest{
		Number: len(f.pulls) + 1,
		Title:  req.Title,
		Head:   req.Head,
		Base:   req.Base,
		Body:   req.Body,
		Draft:  req.Draft,
	}
	f.pulls = append(f.pulls, pr)

	writeJSON(w, http.StatusCreated, map[string]any{
		"number":   pr.Number,
		"html_url": fmt.Sprintf("https://github.com/%s/%s/pull/%d", f.Owner, f.Repo, pr.Number),
		"state":    "open",
		"draft":    pr.Draft,
	})
}

func (f *FakeGitHub) pull(w http.ResponseWriter, r *http.Request) *FakePullRequest {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || n < 1 || n > len(f.pulls) {
		writeMessage(w, http.StatusNotFound, "Not Found")
		return nil
	}
	return f.pulls[n-1]
}

func (f *FakeGitHub) handleLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Labels []string `json:"labels"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	pr := f.pull(w, r)
	if pr == nil {
		return
	}
	pr.Labels = append(pr.Labels, req.Labels...)
	writeJSON(w, http.StatusOK, pr.Labels)
}

func (f *FakeGitHub) handleReviewers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reviewers []string `json:"reviewers"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	pr := f.pull(w, r)
	if pr == nil {
		return
	}
	pr.Reviewers = append(pr.Reviewers, req.Reviewers...)
	writeJSON(w, http.StatusCreated, map[string]any{"number": pr.Number})
}
