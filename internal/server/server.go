// Package server exposes upgrades over HTTP.
//
// Routes:
//
//	POST /api/upgrade                 run one upgrade
//	POST /api/dashboard               run upgrades for several repositories
//	GET  /api/tree/{owner}/{repo}     fetch a repository tree
//	GET  /healthz                     liveness
//
// Requests authenticate to the hosting platform with the bearer token in
// the Authorization header, falling back to the configured token.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/botdas/internal/errors"
	"github.com/Iron-Ham/botdas/internal/logging"
	"github.com/Iron-Ham/botdas/internal/tree"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

// maxBodyBytes bounds request bodies. A posted tree can be large.
const maxBodyBytes = 32 << 20

// Backend runs the operations the server exposes.
type Backend interface {
	Upgrade(ctx context.Context, req upgrade.Request) (*upgrade.Response, error)
	Dashboard(ctx context.Context, reqs []upgrade.Request, parallel int) []upgrade.DashboardEntry
	FetchTree(ctx context.Context, owner, name, path, token string) (*tree.RepositoryNode, error)
	HasToken() bool
}

// Server is the HTTP API.
type Server struct {
	mux         *http.ServeMux
	logger      *logging.Logger
	addr        string
	readTimeout time.Duration

	mu       sync.RWMutex
	backend  Backend
	parallel int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithReadTimeout bounds reading a request.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// WithDashboardParallel sets how many repositories a dashboard request
// analyzes at once.
func WithDashboardParallel(n int) Option {
	return func(s *Server) {
		s.parallel = n
	}
}

// New creates a Server backed by backend.
func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logging.NopLogger(),
		addr:        ":8080",
		readTimeout: 30 * time.Second,
		backend:     backend,
		parallel:    upgrade.DefaultDashboardParallel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/upgrade", s.handleUpgrade)
	s.mux.HandleFunc("POST /api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /api/tree/{owner}/{repo}", s.handleTree)
}

// SetBackend swaps the backend, e.g. after a configuration reload.
// In-flight requests finish on the backend they started with.
func (s *Server) SetBackend(backend Backend, parallel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = backend
	s.parallel = parallel
}

func (s *Server) current() (Backend, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, s.parallel
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return RequestLogger(s.logger)(s.mux)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upgradeBody is the POST /api/upgrade payload.
type upgradeBody struct {
	Owner         string               `json:"owner"`
	Name          string               `json:"name"`
	Tree          *tree.RepositoryNode `json:"tree,omitempty"`
	TargetPackage string               `json:"targetPackage"`
	NoPR          bool                 `json:"noPr,omitempty"`
}

func (b upgradeBody) request(token string) upgrade.Request {
	return upgrade.Request{
		Owner:         strings.TrimSpace(b.Owner),
		Name:          strings.TrimSpace(b.Name),
		Tree:          b.Tree,
		TargetPackage: strings.TrimSpace(b.TargetPackage),
		Token:         token,
		NoPR:          b.NoPR,
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var body upgradeBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	backend, _ := s.current()
	token, ok := authorize(r, backend)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.ErrAuthRequired)
		return
	}

	req := body.request(token)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := backend.Upgrade(r.Context(), req)
	if err != nil {
		s.logger.WithRepository(req.Repository()).Error("upgrade failed", "error", err)
		writeError(w, errors.StatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// dashboardBody is the POST /api/dashboard payload.
type dashboardBody struct {
	Repositories []upgradeBody `json:"repositories"`
	// TargetPackage applies to repositories that do not name their own.
	TargetPackage string `json:"targetPackage,omitempty"`
	NoPR          bool   `json:"noPr,omitempty"`
}

type dashboardResponse struct {
	Success bool                     `json:"success"`
	Results []upgrade.DashboardEntry `json:"results"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var body dashboardBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	backend, parallel := s.current()
	token, ok := authorize(r, backend)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.ErrAuthRequired)
		return
	}
	if len(body.Repositories) == 0 {
		writeError(w, http.StatusBadRequest,
			errors.NewValidationError("at least one repository is required").WithField("repositories"))
		return
	}

	reqs := make([]upgrade.Request, 0, len(body.Repositories))
	for _, repo := range body.Repositories {
		if repo.TargetPackage == "" {
			repo.TargetPackage = body.TargetPackage
		}
		repo.NoPR = repo.NoPR || body.NoPR
		req := repo.request(token)
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reqs = append(reqs, req)
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Success: true,
		Results: backend.Dashboard(r.Context(), reqs, parallel),
	})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	backend, _ := s.current()
	token, ok := authorize(r, backend)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.ErrAuthRequired)
		return
	}

	owner, repo := r.PathValue("owner"), r.PathValue("repo")
	root, err := backend.FetchTree(r.Context(), owner, repo, r.URL.Query().Get("path"), token)
	if err != nil {
		status := errors.StatusCode(err)
		if errors.Is(err, errors.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// authorize returns the request's bearer token. It fails only when the
// request carries none and the backend has no fallback.
func authorize(r *http.Request, backend Backend) (string, bool) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" && !backend.HasToken() {
		return "", false
	}
	return token, true
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError("invalid JSON body: " + err.Error()).WithField("body")
	}
	return nil
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
