// Package api serves resolutions over HTTP.
//
//	POST /v1/resolve     run a resolution from a tool-call payload
//	GET  /v1/runs        list stored runs (?limit=, ?repo=)
//	GET  /v1/runs/{id}   fetch one stored run
//	GET  /healthz        liveness
//
// A resolution runs under the request context, so a client that disconnects
// cancels its run. The run still finalizes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackfix/pkg/buildinfo"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/history"
	"github.com/matzehuels/stackfix/pkg/resolver"
)

// MaxBodySize bounds a resolve payload.
const MaxBodySize = 1 << 20

// Resolver runs one resolution.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Result, error)
}

// Server routes API requests.
type Server struct {
	resolver Resolver
	history  history.Store
	logger   *log.Logger
	router   chi.Router

	mu     sync.Mutex
	active map[string]bool
}

// New creates a server. A nil store disables the run endpoints.
func New(r Resolver, store history.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		resolver: r,
		history:  store,
		logger:   logger,
		active:   make(map[string]bool),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.handleResolve)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New(errors.ErrCodeNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start).Round(time.Millisecond),
			"id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		buildinfo.Info
	}{"ok", buildinfo.Get()})
}

// ResolveResponse is the body of POST /v1/resolve.
type ResolveResponse struct {
	RunID   string           `json:"run_id"`
	Outcome resolver.Outcome `json:"outcome"`
	Report  string           `json:"report"`
	Result  *resolver.Result `json:"result"`
	Error   *ErrorBody       `json:"error,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var in resolver.ToolInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed request body"))
		return
	}
	if in.RepoPath == "" {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput, "repo_path is required"))
		return
	}

	repo := filepath.Clean(in.RepoPath)
	if !s.acquire(repo) {
		writeError(w, http.StatusConflict, errors.New(errors.ErrCodeInvalidInput, "a resolution for %s is already running", repo))
		return
	}
	defer s.release(repo)

	req := in.Request()
	req.RepoPath = repo
	res, err := s.resolver.Resolve(r.Context(), req)
	if r.Context().Err() != nil {
		s.logger.Warn("client went away during resolution", "repo", repo)
		return
	}

	status := http.StatusOK
	body := ResolveResponse{Result: res}
	if res != nil {
		body.RunID = res.RunID
		body.Outcome = res.Outcome
		body.Report = resolver.Report(res)
	}
	if err != nil {
		status = statusFor(err)
		body.Error = errorBody(err)
	}
	writeJSON(w, status, body)
}

func (s *Server) acquire(repo string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[repo] {
		return false
	}
	s.active[repo] = true
	return true
}

func (s *Server) release(repo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, repo)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New(errors.ErrCodeUnsupported, "run history is disabled"))
		return
	}
	opts := history.ListOptions{RepoPath: r.URL.Query().Get("repo")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	runs, err := s.history.List(r.Context(), opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []*history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New(errors.ErrCodeUnsupported, "run history is disabled"))
		return
	}
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ErrorBody is the JSON form of an error.
type ErrorBody struct {
	Code    errors.Code `json:"code,omitempty"`
	Message string      `json:"message"`
	Details []string    `json:"details,omitempty"`
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{
		Code:    errors.GetCode(err),
		Message: errors.UserMessage(err),
		Details: errors.GetDetails(err),
	}
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath, errors.ErrCodeInvalidManifest:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidTarget, errors.ErrCodeInvalidPackage, errors.ErrCodeNoSuitableVersion:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeNotFound, errors.ErrCodeRunNotFound, errors.ErrCodePackageNotFound:
		return http.StatusNotFound
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeNetwork, errors.ErrCodeRateLimited:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]*ErrorBody{"error": errorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
