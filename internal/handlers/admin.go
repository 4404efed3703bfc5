package handlers

import (
	"net/http"

	"tomodachi-cheki/internal/cache"
	"tomodachi-cheki/internal/middleware"

	"github.com/rs/zerolog/log"
)

// AdminHandler exposes signed URL cache diagnostics
type AdminHandler struct {
	urls *cache.SignedURLCache
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(urls *cache.SignedURLCache) *AdminHandler {
	return &AdminHandler{urls: urls}
}

// CacheStats handles GET /api/v1/admin/signed-url-cache
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.urls.Stats())
}

// ClearCache handles DELETE /api/v1/admin/signed-url-cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.urls.Clear()
	log.Info().Str("user_id", middleware.GetUserID(r.Context())).Msg("Signed URL cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
