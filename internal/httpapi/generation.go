package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/qforge/casegen/internal/files"
	"github.com/qforge/casegen/internal/generation"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.generation.CreateSession(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"status":     sess.Status,
		"created_at": sess.CreatedAt,
	})
}

// uploadFields maps multipart field names to upload kinds.
var uploadFields = map[string]string{
	"case_template":    files.KindCaseTemplate,
	"history_cases":    files.KindHistoryCases,
	"requirements_doc": files.KindRequirementsDoc,
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	var uploads []generation.Upload
	for field, kind := range uploadFields {
		file, header, err := r.FormFile(field)
		if err != nil {
			continue
		}
		defer file.Close()
		uploads = append(uploads, generation.Upload{Kind: kind, Name: header.Filename, Content: file})
	}

	cfg := map[string]string{}
	for key, values := range r.MultipartForm.Value {
		if key == "session_id" || len(values) == 0 {
			continue
		}
		cfg[key] = values[0]
	}

	res, err := s.generation.Start(r.Context(), sessionID, uploads, cfg)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"session":  res.Session,
		"greeting": res.Greeting,
	})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	err := s.generation.Generate(r.Context(), req.SessionID, func(ev generation.Event) error {
		return sse.Send(ev)
	})
	if err != nil {
		// Headers are already out; the error has to travel in-band.
		_ = sse.Send(map[string]any{"stage": "error", "message": err.Error()})
	}
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	artifact, err := s.generation.Finalize(r.Context(), req.SessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"file_id":   artifact.ID,
		"file_name": artifact.Name,
		"download":  "/api/generation/download/" + artifact.ID,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := urlParam(r, "fileID")
	if fileID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing file id")
		return
	}

	artifact, err := s.generation.Artifact(r.Context(), fileID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	sess, err := s.generation.Status(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"session_id":        sess.ID,
		"status":            sess.Status,
		"test_case_count":   len(sess.TestCases),
		"generated_file_id": sess.GeneratedFileID,
		"updated_at":        sess.UpdatedAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := urlParam(r, "sessionID")
	if err := s.generation.Cleanup(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
