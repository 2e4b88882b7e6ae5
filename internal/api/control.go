package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/haunt-core/internal/controller"
)

// SourceAPI is recorded in run history for API triggers.
const (
	SourceAPI        = "api"
	defaultStopReason = "api request"
)

// ControlRequest is the optional body of POST /trigger and /estop.
type ControlRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleTrigger starts the trigger sequence as if a visitor had been
// detected. Returns 202 with the run ID.
func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	runID, err := s.controller.Trigger(SourceAPI)
	switch {
	case err == nil:
		s.logger.Info("sequence triggered via API", "run_id", runID)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id": runID,
			"status": "started",
		})
	case errors.Is(err, controller.ErrBusy):
		writeConflict(w, "a sequence is already running or cooling down")
	case errors.Is(err, controller.ErrEmergencyStopped):
		writeConflict(w, "controller is emergency stopped")
	case errors.Is(err, controller.ErrNotRunning):
		writeUnavailable(w, "controller is not running")
	default:
		s.logger.Error("trigger failed", "error", err)
		writeInternalError(w, "trigger failed")
	}
}

// handleEmergencyStop cancels any running sequence and forces every device
// to its safe state. The controller stays stopped until restart.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = defaultStopReason
	}

	if err := s.controller.EmergencyStop(reason); err != nil {
		s.logger.Error("emergency stop left devices unsafe", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeSafeState, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "stopped",
		"reason": reason,
	})
}
