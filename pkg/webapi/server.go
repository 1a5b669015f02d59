// Package webapi serves the corpus over a REST API. Every request builds
// a fresh snapshot so edits on disk are visible without a restart; the
// corpus is small enough that re-reading it per request costs less than
// cache invalidation would.
package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/lint"
	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/version"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// Server is the promptpack HTTP API server.
type Server struct {
	router   *mux.Router
	registry *workspace.Registry
	store    *index.Store
	config   *ServerConfig
	server   *http.Server
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// NewServer creates the API server. The index store may be nil, in which
// case /api/search falls back to scanning the snapshot.
func NewServer(config *ServerConfig, registry *workspace.Registry, store *index.Store) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}

	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		store:    store,
		config:   config,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/commands", s.handleListCommands).Methods("GET")
	api.HandleFunc("/commands/{name}", s.handleGetCommand).Methods("GET")
	api.HandleFunc("/commands/{name}/render", s.handleRenderCommand).Methods("POST")
	api.HandleFunc("/skills", s.handleListSkills).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handleGetSkill).Methods("GET")
	api.HandleFunc("/skills/{name}/resources/{path:.*}", s.handleGetSkillResource).Methods("GET")
	api.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	api.HandleFunc("/agents/{name}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/plugins", s.handleListPlugins).Methods("GET")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
	api.HandleFunc("/lint", s.handleLint).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) snapshot(r *http.Request) (*workspace.Snapshot, error) {
	return s.registry.Snapshot(r.Context())
}

// Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	s.writeJSONResponse(w, map[string]any{
		"version": version.Get(),
		"roots": map[string]string{
			"project": snap.Roots.Project,
			"user":    snap.Roots.User,
		},
		"counts": map[string]int{
			"commands": len(snap.Commands),
			"skills":   len(snap.Skills),
			"agents":   len(snap.Agents),
			"plugins":  len(snap.Plugins),
			"shadowed": len(snap.Shadowed),
		},
	})
}

// commandResponse is the JSON shape for a command.
type commandResponse struct {
	Name         string   `json:"name"`
	Source       string   `json:"source"`
	Description  string   `json:"description,omitempty"`
	ArgumentHint string   `json:"argumentHint,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty"`
	Model        string   `json:"model,omitempty"`
	Body         string   `json:"body,omitempty"`
}

func commandToResponse(c *command.Command, withBody bool) commandResponse {
	resp := commandResponse{
		Name:         c.Name,
		Source:       c.Source,
		Description:  c.Description,
		ArgumentHint: c.ArgumentHint,
		AllowedTools: c.AllowedTools,
		Model:        c.Model,
	}
	if withBody {
		resp.Body = c.Body
	}
	return resp
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	query := r.URL.Query()
	source := query.Get("source")

	var matcher glob.Glob
	if pattern := query.Get("filter"); pattern != "" {
		matcher, err = glob.Compile(pattern)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid filter pattern %q", pattern), err)
			return
		}
	}

	commands := []commandResponse{}
	for _, c := range snap.Commands {
		if source != "" && c.Source != source {
			continue
		}
		if matcher != nil && !matcher.Match(c.Name) {
			continue
		}
		commands = append(commands, commandToResponse(c, false))
	}

	s.writeJSONResponse(w, map[string]any{"commands": commands})
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	name := mux.Vars(r)["name"]
	c, ok := snap.Command(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("command %q not found", name), nil)
		return
	}

	s.writeJSONResponse(w, commandToResponse(c, true))
}

func (s *Server) handleRenderCommand(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	name := mux.Vars(r)["name"]
	c, ok := snap.Command(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("command %q not found", name), nil)
		return
	}

	var req struct {
		Args []string `json:"args"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	// Shell markers are never executed on behalf of HTTP clients.
	renderer := command.NewRenderer(command.WithNoExec(true))
	rendered, err := renderer.Render(r.Context(), c, req.Args)
	if err != nil {
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "failed to render command", err)
		return
	}

	s.writeJSONResponse(w, map[string]any{
		"name":     c.Name,
		"args":     req.Args,
		"rendered": rendered,
	})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	type skillSummary struct {
		Name        string `json:"name"`
		Source      string `json:"source"`
		Description string `json:"description"`
		Version     string `json:"version,omitempty"`
		Resources   int    `json:"resources"`
	}

	skills := []skillSummary{}
	for _, sk := range snap.Skills {
		skills = append(skills, skillSummary{
			Name:        sk.Name,
			Source:      sk.Source,
			Description: sk.Description,
			Version:     sk.Version,
			Resources:   sk.Resources.Count(),
		})
	}

	s.writeJSONResponse(w, map[string]any{"skills": skills})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	name := mux.Vars(r)["name"]
	sk, ok := snap.Skill(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("skill %q not found", name), nil)
		return
	}

	s.writeJSONResponse(w, map[string]any{
		"name":         sk.Name,
		"source":       sk.Source,
		"description":  sk.Description,
		"version":      sk.Version,
		"allowedTools": sk.AllowedTools,
		"body":         sk.Body,
		"resources": map[string][]string{
			"references": sk.Resources.References,
			"examples":   sk.Resources.Examples,
			"scripts":    sk.Resources.Scripts,
			"assets":     sk.Resources.Assets,
		},
	})
}

func (s *Server) handleGetSkillResource(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	vars := mux.Vars(r)
	sk, ok := snap.Skill(vars["name"])
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("skill %q not found", vars["name"]), nil)
		return
	}

	resourcePath, err := sk.ResourcePath(vars["path"])
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid resource path", err)
		return
	}
	if _, err := os.Stat(resourcePath); err != nil {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("resource %q not found", vars["path"]), nil)
		return
	}

	http.ServeFile(w, r, resourcePath)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	type agentSummary struct {
		Name        string `json:"name"`
		Source      string `json:"source"`
		Description string `json:"description"`
		Model       string `json:"model,omitempty"`
	}

	agents := []agentSummary{}
	for _, a := range snap.Agents {
		agents = append(agents, agentSummary{
			Name:        a.Name,
			Source:      a.Source,
			Description: a.Description,
			Model:       a.Model,
		})
	}

	s.writeJSONResponse(w, map[string]any{"agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	name := mux.Vars(r)["name"]
	a, ok := snap.Agent(name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", name), nil)
		return
	}

	s.writeJSONResponse(w, map[string]any{
		"name":         a.Name,
		"source":       a.Source,
		"description":  a.Description,
		"model":        a.Model,
		"allowedTools": a.AllowedTools,
		"persona":      a.Persona,
	})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	s.writeJSONResponse(w, map[string]any{"plugins": snap.Plugins})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "query parameter 'q' is required", nil)
		return
	}

	var kinds []string
	if kind := r.URL.Query().Get("kind"); kind != "" {
		kinds = append(kinds, kind)
	}

	if s.store != nil {
		entries, err := s.store.Search(r.Context(), query, kinds)
		if err != nil {
			s.writeErrorResponse(w, http.StatusInternalServerError, "search failed", err)
			return
		}
		s.writeJSONResponse(w, map[string]any{"results": searchResults(entries)})
		return
	}

	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}
	s.writeJSONResponse(w, map[string]any{"results": scanSnapshot(snap, query, kinds)})
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load corpus", err)
		return
	}

	findings, err := lint.NewLinter().Run(r.Context(), snap)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "lint failed", err)
		return
	}
	if findings == nil {
		findings = []lint.Finding{}
	}

	s.writeJSONResponse(w, map[string]any{
		"findings":  findings,
		"hasErrors": lint.HasErrors(findings),
	})
}

// searchResult is the JSON shape of one search hit.
type searchResult struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

func searchResults(entries []index.Entry) []searchResult {
	results := make([]searchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, searchResult{Kind: e.Kind, Name: e.Name, Source: e.Source, Description: e.Description})
	}
	return results
}

// scanSnapshot is the index-less fallback: substring match over names,
// descriptions, and bodies, name hits first.
func scanSnapshot(snap *workspace.Snapshot, query string, kinds []string) []searchResult {
	wantKind := func(kind string) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	}
	lowered := strings.ToLower(query)
	contains := func(parts ...string) bool {
		for _, p := range parts {
			if strings.Contains(strings.ToLower(p), lowered) {
				return true
			}
		}
		return false
	}

	var nameHits, bodyHits []searchResult
	add := func(kind, name, source, description string, nameMatch, bodyMatch bool) {
		if !wantKind(kind) {
			return
		}
		hit := searchResult{Kind: kind, Name: name, Source: source, Description: description}
		switch {
		case nameMatch:
			nameHits = append(nameHits, hit)
		case bodyMatch:
			bodyHits = append(bodyHits, hit)
		}
	}

	for _, c := range snap.Commands {
		add(workspace.KindCommand, c.Name, c.Source, c.Description, contains(c.Name), contains(c.Description, c.Body))
	}
	for _, sk := range snap.Skills {
		add(workspace.KindSkill, sk.Name, sk.Source, sk.Description, contains(sk.Name), contains(sk.Description, sk.Body))
	}
	for _, a := range snap.Agents {
		add(workspace.KindAgent, a.Name, a.Source, a.Description, contains(a.Name), contains(a.Description, a.Persona))
	}

	return append(nameHits, bodyHits...)
}

// Utility methods

func (s *Server) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(context.TODO()).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":   message,
		"status":  statusCode,
		"success": false,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode error response")
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:    address,
		Handler: s.router,
	}

	presenter.Info(fmt.Sprintf("Starting API server on http://%s", address))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "API server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Stop force-closes the server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
