package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/qforge/casegen/internal/chat"
	"github.com/qforge/casegen/internal/config"
	"github.com/qforge/casegen/internal/dify"
	"github.com/qforge/casegen/internal/files"
	"github.com/qforge/casegen/internal/generation"
	"github.com/qforge/casegen/internal/observability"
	"github.com/qforge/casegen/internal/presets"
	"github.com/qforge/casegen/internal/session"
)

type Server struct {
	cfg        config.Config
	sessions   session.Store
	chat       *chat.Service
	generation *generation.Service
	ai         dify.Client
	metrics    *observability.Metrics
	catalog    presets.Catalog
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, sessions session.Store, chatSvc *chat.Service, genSvc *generation.Service, ai dify.Client, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		chat:       chatSvc,
		generation: genSvc,
		ai:         ai,
		metrics:    metrics,
		catalog:    presets.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly opened
				// up; other sites must not drive a user's generation session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/generation/create-session", s.handleCreateSession)
	r.Post("/api/generation/start", s.handleStart)
	r.Post("/api/generation/generate", s.handleGenerate)
	r.Post("/api/generation/finalize", s.handleFinalize)
	r.Get("/api/generation/download/{fileID}", s.handleDownload)
	r.Get("/api/generation/status/{sessionID}", s.handleStatus)
	r.Delete("/api/generation/session/{sessionID}", s.handleDeleteSession)

	r.Post("/api/chat/send", s.handleChatSend)
	r.Post("/api/chat/stream", s.handleChatStream)
	r.Get("/api/chat/ws", s.handleChatWS)
	r.Get("/api/chat/history/{sessionID}", s.handleChatHistory)
	r.Post("/api/chat/clear", s.handleChatClear)

	r.Get("/api/config/api-versions", s.handleAPIVersions)
	r.Get("/api/config/preset-steps", s.handlePresetSteps)
	r.Get("/api/config/preset-components", s.handlePresetComponents)
	r.Get("/api/config/all", s.handleAllConfig)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"chat_backend": s.chatBackend(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"chat_backend": s.chatBackend(),
	})
}

func (s *Server) chatBackend() string {
	if _, ok := s.ai.(*dify.MockClient); ok {
		return "mock"
	}
	return "dify"
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: code, Message: message})
}

// respondServiceError maps domain errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, files.ErrArtifactNotFound):
		respondError(w, http.StatusNotFound, "file_not_found", err.Error())
	case errors.Is(err, chat.ErrSessionBusy),
		errors.Is(err, generation.ErrNotReady),
		errors.Is(err, generation.ErrNotCompleted):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, generation.ErrTemplateRequired),
		errors.Is(err, files.ErrFileTooLarge):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		var apiErr *dify.APIError
		if errors.As(err, &apiErr) {
			respondError(w, http.StatusBadGateway, "upstream_error", apiErr.Message)
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// sseWriter pushes server-sent events to a streaming response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
