package handlers

import (
	"net/http"

	"tomodachi-cheki/internal/middleware"
	"tomodachi-cheki/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MemoHandler handles per-user memo and reunion requests
type MemoHandler struct {
	memoService *services.MemoService
}

// NewMemoHandler creates a new memo handler
func NewMemoHandler(memoService *services.MemoService) *MemoHandler {
	return &MemoHandler{memoService: memoService}
}

// GetMemo handles GET /api/v1/photos/{id}/memo
func (h *MemoHandler) GetMemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.memoService.GetMemo(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to get memo")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type memoRequest struct {
	Memo string `json:"memo"`
}

// PutMemo handles PUT /api/v1/photos/{id}/memo
func (h *MemoHandler) PutMemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	photoID := chi.URLParam(r, "id")

	var req memoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.memoService.UpsertMemo(ctx, photoID, userID, req.Memo)
	if err != nil {
		respondServiceError(w, err, "Failed to save memo")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("photo_id", photoID).
		Msg("Memo saved")

	respondJSON(w, http.StatusOK, view)
}

// DeleteMemo handles DELETE /api/v1/photos/{id}/memo
func (h *MemoHandler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photoID := chi.URLParam(r, "id")

	if err := h.memoService.DeleteMemo(ctx, photoID, middleware.GetUserID(ctx)); err != nil {
		respondServiceError(w, err, "Failed to delete memo")
		return
	}
	respondJSON(w, http.StatusOK, services.MemoView{PhotoID: photoID})
}

type reunionRequest struct {
	IsReunited *bool `json:"is_reunited"`
}

// GetReunion handles GET /api/v1/photos/{id}/reunion
func (h *MemoHandler) GetReunion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photoID := chi.URLParam(r, "id")

	reunited, err := h.memoService.GetReunion(ctx, photoID, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to get reunion flag")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"photo_id":    photoID,
		"is_reunited": reunited,
	})
}

// PutReunion handles PUT /api/v1/photos/{id}/reunion
func (h *MemoHandler) PutReunion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reunionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsReunited == nil {
		respondError(w, "is_reunited is required", http.StatusBadRequest)
		return
	}

	view, err := h.memoService.SetReunion(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), *req.IsReunited)
	if err != nil {
		respondServiceError(w, err, "Failed to set reunion flag")
		return
	}
	respondJSON(w, http.StatusOK, view)
}
