// Package webui serves the snippet critique form and the suggestion API.
package webui

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lintmend/lintmend/internal/assistant"
	"github.com/lintmend/lintmend/internal/fault"
	"github.com/lintmend/lintmend/internal/output"
	"github.com/lintmend/lintmend/internal/store"
)

// analyzeQuestion is the fixed critique prompt sent for every snippet.
const analyzeQuestion = assistant.DefaultQuestion

// Asker obtains a critique for a code snippet.
type Asker interface {
	Ask(ctx context.Context, code, question string) (string, error)
}

// SuggestionStore is the persistence surface the API endpoints use.
type SuggestionStore interface {
	List(ctx context.Context, file string) ([]store.Suggestion, error)
	Get(ctx context.Context, id int64) (*store.Suggestion, error)
	Update(ctx context.Context, id int64, response string) error
	Delete(ctx context.Context, id int64) error
}

// AuthMode configures authentication for the server.
type AuthMode string

const (
	AuthModeLocal  AuthMode = "local"
	AuthModeAPIKey AuthMode = "api_key"
)

// ParseAuthMode normalizes a raw auth mode string.
func ParseAuthMode(raw string) (AuthMode, error) {
	mode := AuthMode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case "", AuthModeLocal:
		return AuthModeLocal, nil
	case AuthModeAPIKey:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid auth mode %q (valid: local, api_key)", raw)
	}
}

// AuthConfig holds server authentication configuration.
type AuthConfig struct {
	Mode   AuthMode
	APIKey string
}

// Config holds server configuration.
type Config struct {
	Addr         string
	MaxSnippetKB int
	Model        string
	Auth         AuthConfig
}

const defaultAddr = "127.0.0.1:8799"

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxSnippetKB <= 0 {
		cfg.MaxSnippetKB = 64
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeLocal
	}
}

// ValidateConfig checks server configuration for security and completeness.
func ValidateConfig(cfg Config) error {
	applyDefaults(&cfg)

	mode, err := ParseAuthMode(string(cfg.Auth.Mode))
	if err != nil {
		return err
	}
	if mode == AuthModeAPIKey && cfg.Auth.APIKey == "" {
		return fmt.Errorf("auth mode api_key requires an api key")
	}
	if mode == AuthModeLocal && !isLoopbackAddr(cfg.Addr) {
		return fmt.Errorf("refusing to bind %s without auth; set auth mode api_key and a key", cfg.Addr)
	}
	return nil
}

// Server exposes the critique form and suggestion API over HTTP.
type Server struct {
	cfg    Config
	asker  Asker
	store  SuggestionStore
	log    *slog.Logger
	server *http.Server
}

// New creates a new HTTP server.
func New(cfg Config, asker Asker, st SuggestionStore, log *slog.Logger) *Server {
	applyDefaults(&cfg)
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, asker: asker, store: st, log: log}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Handler builds the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/suggestions", s.handleSuggestions)
	mux.HandleFunc("/api/suggestions/", s.handleSuggestion)
	mux.HandleFunc("/health", s.handleHealth)
	return requestIDMiddleware(s.loggingMiddleware(s.authMiddleware(mux)))
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	if err := ValidateConfig(s.cfg); err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// An analyze request holds an assistant session that can run for
		// minutes, so the write side stays unbounded.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting web server", "addr", s.cfg.Addr, "auth", string(s.cfg.Auth.Mode))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

const requestIDHeader = "X-Request-Id"

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestIDMiddleware assigns a request ID and stores it in context and
// response headers.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"elapsed", time.Since(start), "request_id", requestIDFromContext(r.Context()))
	})
}

// authMiddleware enforces configured authentication for all routes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Auth.Mode == AuthModeLocal || s.cfg.Auth.Mode == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := extractAPIKey(r)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Auth.APIKey)) != 1 {
			s.log.Warn("auth failed", "path", r.URL.Path, "remote", r.RemoteAddr,
				"request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>lintmend</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 60em; }
textarea { width: 100%; font-family: monospace; }
pre { background: #f4f4f4; padding: 1em; white-space: pre-wrap; }
.error { color: #b00020; }
</style>
</head>
<body>
<h1>Code critique</h1>
<form method="post" action="/analyze">
<textarea name="code" rows="16" placeholder="Paste a Python snippet">{{.Code}}</textarea>
<p><button type="submit">Analyze</button></p>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Response}}<h2>Critique</h2><pre>{{.Response}}</pre>{{end}}
</body>
</html>
`))

type indexData struct {
	Code     string
	Response string
	Error    string
}

// handleIndex serves the snippet form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.renderIndex(w, indexData{})
}

func (s *Server) renderIndex(w http.ResponseWriter, data indexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.log.Error("render index failed", "error", err)
	}
}

// handleAnalyze critiques a snippet posted as a form field or JSON body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	maxBytes := int64(s.cfg.MaxSnippetKB) << 10
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)

	code, asJSON, err := readSnippet(r)
	if err != nil {
		s.replyError(w, r, asJSON, &fault.ValidationError{Field: "code", Reason: err.Error()})
		return
	}
	if strings.TrimSpace(code) == "" {
		s.replyError(w, r, asJSON, &fault.ValidationError{Field: "code", Reason: "must not be empty"})
		return
	}
	if int64(len(code)) > maxBytes {
		reason := fmt.Sprintf("exceeds %d KB", s.cfg.MaxSnippetKB)
		s.replyError(w, r, asJSON, &fault.ValidationError{Field: "code", Reason: reason})
		return
	}

	s.log.Info("analyze request", "bytes", len(code), "preview", output.Truncate(code, 80))

	critique, err := s.asker.Ask(r.Context(), code, analyzeQuestion)
	if err != nil {
		s.replyError(w, r, asJSON, err)
		return
	}

	if asJSON || wantsJSON(r) {
		resp := output.AskResponse{
			TimestampedResponse: output.NewTimestamped(),
			Question:            analyzeQuestion,
			Response:            critique,
			Model:               s.cfg.Model,
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	s.renderIndex(w, indexData{Code: code, Response: critique})
}

// readSnippet extracts the snippet from a JSON or form body. The second
// return reports whether the request body was JSON.
func readSnippet(r *http.Request) (string, bool, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", true, fmt.Errorf("invalid json body: %v", err)
		}
		return body.Code, true, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", false, fmt.Errorf("invalid form body: %v", err)
	}
	return r.PostFormValue("code"), false, nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// replyError renders err as JSON or as the form page depending on the
// caller.
func (s *Server) replyError(w http.ResponseWriter, r *http.Request, asJSON bool, err error) {
	status := fault.HTTPStatus(err)
	setRetryAfter(w, err)
	if asJSON || wantsJSON(r) {
		writeJSON(w, status, output.ErrorResponseFor(err))
		return
	}
	w.WriteHeader(status)
	s.renderIndex(w, indexData{Error: err.Error()})
}

// setRetryAfter advertises the throttle wait for rate-limited requests.
func setRetryAfter(w http.ResponseWriter, err error) {
	var rl *fault.RateLimitError
	if !errors.As(err, &rl) {
		return
	}
	secs := int(rl.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

// handleSuggestions handles /api/suggestions - list stored exchanges.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	suggestions, err := s.store.List(r.Context(), r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// handleSuggestion handles /api/suggestions/{id}.
func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/suggestions/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "suggestion id required")
		return
	}

	sg, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sg == nil {
		writeError(w, http.StatusNotFound, "suggestion not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "suggestion": sg})
	case http.MethodPut:
		var body struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := s.store.Update(r.Context(), id, body.Response); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, output.NewSuccess("suggestion updated"))
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, output.NewSuccess("suggestion deleted"))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "healthy",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("encode response failed", "error", err)
	}
}

// writeError writes an error response envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, output.NewError(message))
}

func generateRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}

func requestIDFromContext(ctx context.Context) string {
	val, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return val
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	parts := strings.Fields(auth)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func isLoopbackAddr(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
