package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// AgentRun is a run request received by FakeAgents.
type AgentRun struct {
	AppName   string
	UserID    string
	SessionID string
	Text      string
	// Inputs is the JSON object following the instruction, when present.
	Inputs map[string]any
}

// AgentReply produces the raw response body for a run.
type AgentReply func(run AgentRun) (status int, body string)

// FakeAgents is an in-memory agent server implementing the session and run
// protocol for any number of apps.
type FakeAgents struct {
	server   *httptest.Server
	failures failures

	mu       sync.Mutex
	sessions map[string]map[string]any
	creates  int
	patches  int
	runs     []AgentRun
	replies  map[string]AgentReply
}

// NewFakeAgents starts a fake agent server closed when the test completes.
func NewFakeAgents(t testing.TB) *FakeAgents {
	t.Helper()

	f := &FakeAgents{
		sessions: make(map[string]map[string]any),
		replies:  make(map[string]AgentReply),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /apps/{app}/users/{user}/sessions/{session}", f.handleCreate)
	mux.HandleFunc("PATCH /apps/{app}/users/{user}/sessions/{session}", f.handlePatch)
	mux.HandleFunc("POST /run", f.handleRun)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rule, ok := f.failures.match(r); ok {
			writeJSON(w, rule.status, map[string]string{"detail": rule.body})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	return f
}

// URL returns the server root.
func (f *FakeAgents) URL() string {
	return f.server.URL
}

// FailOn makes requests with method whose path contains pattern fail.
func (f *FakeAgents) FailOn(method, pattern string, status int, detail string) {
	f.failures.add(method, pattern, status, detail)
}

// Reply sets the responder for app.
func (f *FakeAgents) Reply(app string, reply AgentReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[app] = reply
}

// ReplyJSON makes app answer with v embedded in prose, the way a chatty
// model does.
func (f *FakeAgents) ReplyJSON(app string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.Reply(app, func(AgentRun) (int, string) {
		return http.StatusOK, TurnsBody("Here is the result:\n```json\n" + string(payload) + "\n```\nLet me know if you need more.")
	})
}

// ReplyText makes app answer with plain text.
func (f *FakeAgents) ReplyText(app, text string) {
	f.Reply(app, func(AgentRun) (int, string) {
		return http.StatusOK, TurnsBody(text)
	})
}

// FailRun makes runs for app fail with status.
func (f *FakeAgents) FailRun(app string, status int, detail string) {
	f.Reply(app, func(AgentRun) (int, string) {
		body, _ := json.Marshal(map[string]string{"detail": detail})
		return status, string(body)
	})
}

// TurnsBody wraps text in a two-turn run response whose last turn carries it.
func TurnsBody(text string) string {
	turns := []map[string]any{
		{"author": "user", "content": map[string]any{"role": "user", "parts": []any{map[string]string{"text": "..."}}}},
		{"author": "model", "content": map[string]any{"role": "model", "parts": []any{map[string]string{"text": text}}}},
	}
	body, _ := json.Marshal(turns)
	return string(body)
}

// Session returns the stored state for a session.
func (f *FakeAgents) Session(app, user, session string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.sessions[sessionKey(app, user, session)]
	return state, ok
}

// SessionCount returns the number of distinct sessions.
func (f *FakeAgents) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// Counts returns the number of create and patch requests served.
func (f *FakeAgents) Counts() (creates, patches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.patches
}

// Runs returns the runs received for app, or all runs when app is empty.
func (f *FakeAgents) Runs(app string) []AgentRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AgentRun
	for _, run := range f.runs {
		if app == "" || run.AppName == app {
			out = append(out, run)
		}
	}
	return out
}

func sessionKey(app, user, session string) string {
	return app + "/" + user + "/" + session
}

func decodeState(r *http.Request) (map[string]any, error) {
	var req struct {
		State map[string]any `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.State == nil {
		req.State = map[string]any{}
	}
	return req.State, nil
}

func (f *FakeAgents) handleCreate(w http.ResponseWriter, r *http.Request) {
	state, err := decodeState(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	key := sessionKey(r.PathValue("app"), r.PathValue("user"), r.PathValue("session"))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++

	if _, exists := f.sessions[key]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{
			"detail": fmt.Sprintf("Session already exists: %s", r.PathValue("session")),
		})
		return
	}
	f.sessions[key] = state
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("session"), "state": state})
}

func (f *FakeAgents) handlePatch(w http.ResponseWriter, r *http.Request) {
	state, err := decodeState(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	key := sessionKey(r.PathValue("app"), r.PathValue("user"), r.PathValue("session"))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches++

	if _, exists := f.sessions[key]; !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
		return
	}
	f.sessions[key] = state
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("session"), "state": state})
}

func (f *FakeAgents) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppName    string `json:"app_name"`
		UserID     string `json:"user_id"`
		SessionID  string `json:"session_id"`
		NewMessage struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"new_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	run := AgentRun{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}
	if len(req.NewMessage.Parts) > 0 {
		run.Text = req.NewMessage.Parts[0].Text
	}
	if i := strings.LastIndex(run.Text, "\n\n"); i >= 0 {
		var inputs map[string]any
		if json.Unmarshal([]byte(run.Text[i+2:]), &inputs) == nil {
			run.Inputs = inputs
		}
	}

	f.mu.Lock()
	_, known := f.sessions[sessionKey(req.AppName, req.UserID, req.SessionID)]
	f.runs = append(f.runs, run)
	reply := f.replies[req.AppName]
	f.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
		return
	}
	if reply == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	status, body := reply(run)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
