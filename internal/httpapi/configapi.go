package httpapi

import "net/http"

func (s *Server) handleAPIVersions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"versions": s.catalog.APIVersions,
	})
}

func (s *Server) handlePresetSteps(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"preset_steps": s.catalog.Steps,
	})
}

func (s *Server) handlePresetComponents(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"preset_components": s.catalog.Components,
	})
}

func (s *Server) handleAllConfig(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  s.catalog,
	})
}
