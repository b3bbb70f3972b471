package api

import "net/http"

// handleFirmwareCacheStats returns a snapshot of the firmware caches.
//
// GET /api/v1/firmware/cache
func (s *Server) handleFirmwareCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.firmware.Stats())
}

// handleClearFirmwareCache drops all cached manifests and images.
//
// DELETE /api/v1/firmware/cache
func (s *Server) handleClearFirmwareCache(w http.ResponseWriter, _ *http.Request) {
	s.firmware.ClearCache()
	s.logger.Info("firmware cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// handleManufacturers returns the manufacturer codes covered by the
// configured firmware sources.
//
// GET /api/v1/firmware/manufacturers
func (s *Server) handleManufacturers(w http.ResponseWriter, r *http.Request) {
	codes := s.firmware.SupportedManufacturers(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"manufacturers": codes,
		"count":         len(codes),
	})
}
