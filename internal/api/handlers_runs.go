package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/gorango/flowcraft"
	"github.com/gorango/flowcraft/internal/fctx"
)

// runRequest is the body of a run-launch request: the caller's seed
// state for the blueprint's Context.
type runRequest struct {
	InitialState map[string]any `json:"initialState,omitempty"`
}

type runResponse struct {
	RunID   string           `json:"runId"`
	Status  flowcraft.Status `json:"status"`
	Context map[string]any   `json:"context"`
	Errors  []string         `json:"errors,omitempty"`
}

// runScopedPublisher tags every event it forwards with the runId that
// launched it, the same "runId" key the distributed adapter already
// stamps its own events with (internal/adapter/adapter.go), so a single
// websocket hub can serve concurrent in-process runs without their
// events being indistinguishable.
type runScopedPublisher struct {
	runID string
	next  fctx.EventPublisher
}

func (p runScopedPublisher) Publish(eventType string, payload map[string]any) {
	scoped := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		scoped[k] = v
	}
	scoped["runId"] = p.runID
	p.next.Publish(eventType, scoped)
}

// handleRunBlueprint loads {id} and runs it synchronously to
// completion, stall, or suspension, streaming events to the websocket
// hub as it goes.
func (s *Server) handleRunBlueprint(w http.ResponseWriter, r *http.Request) {
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

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid run request json: "+err.Error())
			return
		}
	}

	runID := uuid.NewString()
	var publisher fctx.EventPublisher
	if s.hub != nil {
		publisher = runScopedPublisher{runID: runID, next: s.hub}
	}

	s.logger.Info().Str("run_id", runID).Str("blueprint_id", id).Msg("run starting")

	result, runErr := s.runtime.Run(r.Context(), bp, flowcraft.RunOptions{
		InitialState: req.InitialState,
		Publisher:    publisher,
	})
	if runErr != nil && result == nil {
		s.logger.Error().Err(runErr).Str("run_id", runID).Msg("run failed to start")
		writeError(w, http.StatusInternalServerError, "run failed: "+runErr.Error())
		return
	}

	resp := runResponse{RunID: runID, Status: result.Status, Context: result.Context}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	s.logger.Info().Str("run_id", runID).Str("status", string(result.Status)).Msg("run finished")
	writeJSON(w, http.StatusOK, resp)
}
