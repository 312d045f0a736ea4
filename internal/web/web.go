package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"icalmcp/internal/config"
	"icalmcp/internal/journal"
	appLog "icalmcp/internal/log"
	"icalmcp/internal/tools"
)

const maxBodyBytes = 1 << 20

// JournalReader is the read side of the call journal.
type JournalReader interface {
	Recent(ctx context.Context, n int) ([]journal.Entry, error)
}

// Server exposes the calendar tools over HTTP.
type Server struct {
	cfg     *config.Config
	tools   *tools.Service
	journal JournalReader
	mux     *http.ServeMux
}

// NewServer constructs a new Server. j may be nil.
func NewServer(cfg *config.Config, svc *tools.Service, j JournalReader) *Server {
	s := &Server{
		cfg:     cfg,
		tools:   svc,
		journal: j,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icalmcp", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, svc *tools.Service, j JournalReader) error {
	s := NewServer(cfg, svc, j)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/tools", s.handleListTools)
	s.mux.HandleFunc("POST /api/tools/{name}", s.handleCallTool)
	s.mux.HandleFunc("GET /api/calendars", s.handleCalendars)
	s.mux.HandleFunc("GET /api/journal", s.handleJournal)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type toolsResponse struct {
	Tools     []tools.Tool     `json:"tools"`
	Resources []tools.Resource `json:"resources"`
}

type resultResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toolsResponse{Tools: tools.Tools(), Resources: tools.Resources()})
}

// handleCallTool runs the named tool with the request body as arguments.
//
// POST /api/tools/update_event
//
//	{"event_id": "...", "update_event_request": {...}, "occurrence_date": "2025-11-23T14:00:00"}
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !slices.ContainsFunc(tools.Tools(), func(t tools.Tool) bool { return t.Name == name }) {
		writeError(w, http.StatusNotFound, "unknown tool "+strconv.Quote(name))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	appLog.Debug("api tool call", "tool", name, "bytes", len(body))
	writeJSON(w, http.StatusOK, resultResponse{Result: s.tools.Call(r.Context(), name, body)})
}

// handleCalendars serves the calendars://list resource.
func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	text, _ := s.tools.ReadResource(r.Context(), tools.CalendarsResource)
	writeJSON(w, http.StatusOK, resultResponse{Result: text})
}

type journalEntryDTO struct {
	At      time.Time `json:"at"`
	Tool    string    `json:"tool"`
	EventID string    `json:"event_id,omitempty"`
	Scope   string    `json:"scope,omitempty"`
	Outcome string    `json:"outcome"`
	Message string    `json:"message,omitempty"`
}

// handleJournal returns the latest tool calls.
//
// GET /api/journal?limit=20
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		appLog.Error("api journal: read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	dtos := make([]journalEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, journalEntryDTO{
			At: e.At, Tool: e.Tool, EventID: e.EventID, Scope: e.Scope, Outcome: e.Outcome, Message: e.Message,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
