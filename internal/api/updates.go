package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zigmesh/tuya-core/internal/firmware"
	"github.com/zigmesh/tuya-core/internal/update"
)

// handleActiveUpdates returns all live firmware updates.
//
// GET /api/v1/updates/active
func (s *Server) handleActiveUpdates(w http.ResponseWriter, _ *http.Request) {
	active := s.orchestrator.ActiveUpdates()
	writeJSON(w, http.StatusOK, map[string]any{
		"updates": active,
		"count":   len(active),
	})
}

// handleUpdateHistory returns finished update attempts, newest first.
// When a persistent archive is configured it is preferred over the
// in-memory ring buffer.
//
// GET /api/v1/updates/history?limit=N
func (s *Server) handleUpdateHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	var history []update.UpdateState
	if s.archiver != nil {
		var err error
		history, err = s.archiver.GetHistory(r.Context(), limit)
		if err != nil {
			s.logger.Error("reading update history", "error", err)
			writeInternalError(w, "failed to read update history")
			return
		}
	} else {
		history = s.orchestrator.UpdateHistory(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"count":   len(history),
	})
}

// handleCheckUpdate reports whether a newer firmware image exists for a
// device without mutating any state.
//
// GET /api/v1/devices/{id}/update/check
func (s *Server) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	result, err := s.orchestrator.CheckUpdate(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("update check failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "update check failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePerformUpdate starts a firmware update for a device.
//
// POST /api/v1/devices/{id}/update
func (s *Server) handlePerformUpdate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	state, err := s.orchestrator.PerformUpdate(r.Context(), deviceID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, state)
	case errors.Is(err, update.ErrUpdateInProgress):
		writeConflict(w, "an update is already in progress for this device")
	case errors.Is(err, update.ErrNoOTAInfo):
		writeNotFound(w, "device has no OTA info")
	case errors.Is(err, update.ErrNoUpdateAvailable):
		writeNotFound(w, "no update available for this device")
	case errors.Is(err, firmware.ErrDownloadFailed):
		s.logger.Error("firmware download failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "firmware download failed")
	default:
		s.logger.Error("starting update failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to start update")
	}
}

// handleCancelUpdate cancels a live firmware update. The device may
// keep transferring; only the orchestrator's record is closed.
//
// DELETE /api/v1/devices/{id}/update
func (s *Server) handleCancelUpdate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	state, err := s.orchestrator.CancelUpdate(r.Context(), deviceID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, update.ErrNotUpdating):
		writeNotFound(w, "device is not updating")
	default:
		s.logger.Error("cancelling update failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to cancel update")
	}
}
