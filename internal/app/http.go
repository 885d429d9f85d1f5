package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fipsync/internal/config"
	"fipsync/internal/search"

	"golang.org/x/crypto/bcrypt"
)

const syncTokenHeader = "X-Fipsync-Token"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/github/sync" {
		s.handleSync(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/github/sync" {
		if !s.service.AuthorizeSync(strings.TrimSpace(r.Header.Get(syncTokenHeader))) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		repo, err := s.repoFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		summary, ok := s.service.LastSummary(repo)
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "No completed sync for "+repo.String(), nil)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/conversations/search" {
		s.handleSearch(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.service.AuthorizeSync(strings.TrimSpace(r.Header.Get(syncTokenHeader))) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	var body struct {
		Owner string `json:"owner"`
		Name  string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	repo, err := s.trackedRepo(body.Owner, body.Name)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	summary, err := s.service.Sync(r.Context(), repo)
	if err != nil {
		status, code, message, details := mapError(err)
		if code == "SERVER_ERROR" {
			code, message = "SYNC_FAILED", err.Error()
		}
		s.service.logger.Error("sync failed", "repo", repo.String(), "error", err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := search.Query{
		Text:   strings.TrimSpace(values.Get("q")),
		Repo:   strings.TrimSpace(values.Get("repo")),
		Status: strings.TrimSpace(values.Get("status")),
		Limit:  20,
	}
	if raw := values.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "active must be a boolean", nil)
			return
		}
		q.ActiveOnly = active
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		q.Limit = min(limit, 100)
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return
		}
		q.Offset = offset
	}
	writeJSON(w, http.StatusOK, s.service.SearchConversations(q))
}

func (s *HTTPServer) repoFromQuery(r *http.Request) (config.RepoRef, error) {
	values := r.URL.Query()
	return s.trackedRepo(values.Get("owner"), values.Get("name"))
}

// trackedRepo resolves an optional owner/name pair to a configured repository.
func (s *HTTPServer) trackedRepo(owner, name string) (config.RepoRef, error) {
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if owner == "" && name == "" {
		return s.service.DefaultRepo(), nil
	}
	if owner == "" || name == "" {
		return config.RepoRef{}, validationError("owner and name are both required", nil)
	}
	want := config.RepoRef{Owner: owner, Name: name}
	for _, repo := range s.service.cfg.Repos() {
		if strings.EqualFold(repo.String(), want.String()) {
			return repo, nil
		}
	}
	return config.RepoRef{}, validationError("repository is not tracked", map[string]any{"repo": want.String()})
}

// AuthorizeSync checks a sync trigger token against the configured bcrypt
// hash, or the plain token when no hash is set. With neither configured every
// token is rejected.
func (s *Service) AuthorizeSync(token string) bool {
	if token == "" {
		return false
	}
	if s.cfg.SyncTokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.cfg.SyncTokenHash), []byte(token)) == nil
	}
	if s.cfg.SyncToken != "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.SyncToken)) == 1
	}
	return false
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.service.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+syncTokenHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody decodes an optional JSON body; an empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
