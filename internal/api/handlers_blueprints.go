package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorango/flowcraft/internal/blueprint"
)

// handlePutBlueprint stores the JSON-encoded blueprint in the request
// body under {id}, mirroring handlers_workflows.go's create/update
// handler but operating directly on blueprint.Blueprint since it's
// already the wire shape — no CreateWorkflowRequest/WorkflowResponse
// DTO translation is needed.
func (s *Server) handlePutBlueprint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var bp blueprint.Blueprint
	if err := json.NewDecoder(r.Body).Decode(&bp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid blueprint json: "+err.Error())
		return
	}
	bp.ID = id
	if len(bp.Nodes) == 0 {
		writeError(w, http.StatusBadRequest, "blueprint must declare at least one node")
		return
	}
	bp.Analysis()

	if err := s.blueprints.Put(r.Context(), &bp); err != nil {
		s.logger.Error().Err(err).Str("blueprint_id", id).Msg("failed to store blueprint")
		writeError(w, http.StatusInternalServerError, "failed to store blueprint")
		return
	}

	writeJSON(w, http.StatusOK, &bp)
}

func (s *Server) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	bp, found, err := s.blueprints.Get(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("blueprint_id", id).Msg("failed to load blueprint")
		writeError(w, http.StatusInternalServerError, "failed to load blueprint")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "blueprint not found")
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
