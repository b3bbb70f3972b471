package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zigmesh/tuya-core/internal/datapoint"
)

// handleGetDescriptor returns the descriptor for a datapoint ID, custom
// or built-in.
//
// GET /api/v1/datapoints/{dp}
func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
	dp, err := strconv.Atoi(chi.URLParam(r, "dp"))
	if err != nil {
		writeBadRequest(w, "datapoint ID must be an integer")
		return
	}

	desc, ok := s.mapper.Descriptor(dp)
	if !ok {
		writeNotFound(w, "no descriptor for this datapoint")
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// handleAddDescriptor registers a custom descriptor. A custom descriptor
// shadows any built-in for the same datapoint until removed.
//
// POST /api/v1/datapoints
func (s *Server) handleAddDescriptor(w http.ResponseWriter, r *http.Request) {
	var desc datapoint.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeBadRequest(w, "invalid descriptor payload")
		return
	}

	if err := s.mapper.AddDescriptor(desc); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.logger.Info("custom descriptor added", "dp", desc.DP, "capability", desc.Capability)
	writeJSON(w, http.StatusCreated, desc)
}

// handleRemoveDescriptor removes a custom descriptor, restoring any
// shadowed built-in. Built-ins themselves cannot be removed.
//
// DELETE /api/v1/datapoints/{dp}
func (s *Server) handleRemoveDescriptor(w http.ResponseWriter, r *http.Request) {
	dp, err := strconv.Atoi(chi.URLParam(r, "dp"))
	if err != nil {
		writeBadRequest(w, "datapoint ID must be an integer")
		return
	}

	switch err := s.mapper.RemoveDescriptor(dp); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, datapoint.ErrNotCustom):
		writeNotFound(w, "no custom descriptor for this datapoint")
	default:
		writeInternalError(w, "failed to remove descriptor")
	}
}
