package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"tomodachi-cheki/internal/middleware"
	"tomodachi-cheki/internal/models"
	"tomodachi-cheki/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService   *services.PhotoService
	maxUploadBytes int64
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService, maxUploadBytes int64) *PhotoHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &PhotoHandler{
		photoService:   photoService,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreatePhoto handles POST /api/v1/photos
func (h *PhotoHandler) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "multipart form required", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "failed to read file", http.StatusBadRequest)
		return
	}

	photo, err := h.photoService.CreatePhoto(ctx, services.CreatePhotoInput{
		OwnerID:  userID,
		DeviceID: r.FormValue("device_id"),
		Data:     data,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to create photo")
		return
	}

	respondJSON(w, http.StatusCreated, h.record(r, photo))
}

// GetPhotos handles GET /api/v1/photos
func (h *PhotoHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	// Parse query parameters
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil {
			limit = parsedLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil {
			offset = parsedOffset
		}
	}

	photos, total, err := h.photoService.ListMyPhotos(ctx, userID, limit, offset)
	if err != nil {
		respondServiceError(w, err, "Failed to get photos")
		return
	}

	records := make([]services.PhotoRecord, 0, len(photos))
	for _, photo := range photos {
		records = append(records, h.record(r, photo))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"photos": records,
		"total":  total,
	})
}

// GetPhoto handles GET /api/v1/photos/{id}
func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	view, err := h.photoService.ViewPhoto(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get photo")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type receiveRequest struct {
	ReceiverName string           `json:"receiverName"`
	Location     *models.Location `json:"location"`
}

// ReceivePhoto handles POST /api/v1/photos/{id}/receive
func (h *PhotoHandler) ReceivePhoto(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	photo, err := h.photoService.ReceivePhoto(r.Context(), chi.URLParam(r, "id"), services.ReceiveInput{
		Receiver: models.GuestReceiver(req.ReceiverName),
		Location: req.Location,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to receive photo")
		return
	}

	respondJSON(w, http.StatusOK, h.record(r, photo))
}

type completeResponse struct {
	services.PhotoRecord
	AuthenticationStatus services.AuthStatus `json:"authenticationStatus"`
}

// CompletePhoto handles POST /api/v1/photos/{id}/complete
func (h *PhotoHandler) CompletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req receiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	photo, status, err := h.photoService.CompletePhoto(ctx, chi.URLParam(r, "id"), services.CompleteInput{
		CallerUserID: middleware.GetUserID(ctx),
		ReceiverName: req.ReceiverName,
		Location:     req.Location,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to complete photo")
		return
	}

	respondJSON(w, http.StatusOK, completeResponse{
		PhotoRecord:          h.record(r, photo),
		AuthenticationStatus: status,
	})
}

// ClaimPhoto handles PUT /api/v1/photos/{id}/claim
func (h *PhotoHandler) ClaimPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	photo, err := h.photoService.ClaimPhoto(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		respondServiceError(w, err, "Failed to claim photo")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"photo_id": photo.ID})
}

// record converts a photo to its response form with a readable image URL.
// A URL failure leaves imageUrl empty rather than failing the request.
func (h *PhotoHandler) record(r *http.Request, photo *models.Photo) services.PhotoRecord {
	rec := services.NewPhotoRecord(photo)
	url, err := h.photoService.ResolveImageURL(r.Context(), photo)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to resolve image URL")
		return rec
	}
	rec.ImageURL = url
	return rec
}
