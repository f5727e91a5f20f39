package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and message are required")
		return
	}

	res, err := s.chat.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"answer":         res.Answer,
		"session_status": res.Status,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and message are required")
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	res, err := s.chat.Stream(r.Context(), req.SessionID, req.Message, func(delta string) error {
		return sse.Send(map[string]any{"type": "delta", "delta": delta})
	})
	if err != nil {
		_ = sse.Send(map[string]any{"type": "error", "message": err.Error()})
		return
	}
	_ = sse.Send(map[string]any{
		"type":           "done",
		"answer":         res.Answer,
		"session_status": res.Status,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	history, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": history,
	})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.chat.ClearHistory(r.Context(), req.SessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// wsClientMessage is what the browser sends over the chat websocket.
type wsClientMessage struct {
	Message string `json:"message"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if strings.TrimSpace(msg.Message) == "" {
			s.writeWS(conn, map[string]any{"type": "error", "message": "message is empty"})
			continue
		}

		res, err := s.chat.Stream(r.Context(), sessionID, msg.Message, func(delta string) error {
			return s.writeWS(conn, map[string]any{"type": "delta", "delta": delta})
		})
		if err != nil {
			s.writeWS(conn, map[string]any{"type": "error", "message": err.Error()})
			continue
		}
		s.writeWS(conn, map[string]any{
			"type":           "done",
			"answer":         res.Answer,
			"session_status": res.Status,
		})
	}

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}
