package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tomodachi-cheki/internal/cache"
	apperrors "tomodachi-cheki/internal/errors"
	"tomodachi-cheki/internal/models"
	"tomodachi-cheki/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxReceiverName  = 50
)

// PhotoStore is the persistence the photo lifecycle needs.
type PhotoStore interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	MarkReceived(ctx context.Context, id string, upd repository.ReceiveUpdate) (*models.Photo, bool, error)
	Claim(ctx context.Context, id, userID string, now time.Time) (*models.Photo, bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, []string, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Photo, int, error)
}

// ObjectStore holds image bytes and mints time-limited read URLs.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, path string) error
}

// PhotoNotifier is told when a photo someone owns gets received.
type PhotoNotifier interface {
	NotifyPhotoReceived(ownerID string, photo *models.Photo)
}

// PhotoOptions configures a PhotoService.
type PhotoOptions struct {
	SignedURLTTL time.Duration
	Notifier     PhotoNotifier
	Now          func() time.Time
}

// PhotoService owns the photo lifecycle: capture, receive, claim and expiry.
type PhotoService struct {
	photos       PhotoStore
	objects      ObjectStore
	urls         *cache.SignedURLCache
	signedURLTTL time.Duration
	notifier     PhotoNotifier
	now          func() time.Time
}

// NewPhotoService creates a new photo service
func NewPhotoService(photos PhotoStore, objects ObjectStore, urls *cache.SignedURLCache, opts PhotoOptions) *PhotoService {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &PhotoService{
		photos:       photos,
		objects:      objects,
		urls:         urls,
		signedURLTTL: opts.SignedURLTTL,
		notifier:     opts.Notifier,
		now:          opts.Now,
	}
}

// CreatePhotoInput is a captured image and who captured it.
// Exactly one of OwnerID and DeviceID is expected; OwnerID wins.
type CreatePhotoInput struct {
	OwnerID  string
	DeviceID string
	Data     []byte
}

// CreatePhoto normalizes and stores the image, then inserts an unreceived
// photo that expires 24h from now.
func (s *PhotoService) CreatePhoto(ctx context.Context, in CreatePhotoInput) (*models.Photo, error) {
	prefix := in.OwnerID
	if prefix == "" {
		prefix = strings.TrimSpace(in.DeviceID)
	}
	if prefix == "" {
		return nil, fmt.Errorf("owner or device id is required: %w", apperrors.ErrValidation)
	}
	if strings.ContainsAny(prefix, "/\\") || strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("invalid device id: %w", apperrors.ErrValidation)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("image is required: %w", apperrors.ErrValidation)
	}

	jpeg, err := normalizeImage(in.Data)
	if err != nil {
		return nil, err
	}

	photoID := uuid.New().String()
	path := fmt.Sprintf("%s/%s.jpg", prefix, photoID)

	if err := s.objects.Upload(ctx, path, jpeg, "image/jpeg"); err != nil {
		return nil, unavailable(err)
	}

	now := s.now()
	photo := &models.Photo{
		ID:        photoID,
		ImagePath: &path,
		CreatedAt: now,
		ExpiresAt: now.Add(models.PhotoTTL),
		UpdatedAt: now,
	}
	if in.OwnerID != "" {
		owner := in.OwnerID
		photo.OwnerID = &owner
	} else {
		device := prefix
		photo.DeviceID = &device
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		if delErr := s.objects.Delete(ctx, path); delErr != nil {
			log.Warn().Err(delErr).Str("path", path).Msg("Failed to remove orphaned upload")
		}
		return nil, unavailable(err)
	}

	log.Info().
		Str("photo_id", photo.ID).
		Str("path", path).
		Int("bytes", len(jpeg)).
		Msg("Photo created")

	return photo, nil
}

// GetPhoto returns the raw photo row. Expiry is not applied here.
func (s *PhotoService) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return photo, nil
}

// PhotoView is the public read model of a photo
type PhotoView struct {
	ID           string           `json:"id"`
	ImageURL     string           `json:"imageUrl"`
	StoragePath  *string          `json:"storagePath"`
	ReceiverName *string          `json:"receiverName"`
	ReceivedAt   *time.Time       `json:"receivedAt"`
	Location     *models.Location `json:"location"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

// ViewPhoto loads a photo for public display. Expired photos yield
// ErrExpired so the boundary can answer 410 instead of 404.
func (s *PhotoService) ViewPhoto(ctx context.Context, id string) (*PhotoView, error) {
	photo, err := s.GetPhoto(ctx, id)
	if err != nil {
		return nil, err
	}
	if photo.IsExpired(s.now()) {
		return nil, fmt.Errorf("photo %s: %w", id, apperrors.ErrExpired)
	}

	url, err := s.ResolveImageURL(ctx, photo)
	if err != nil {
		return nil, err
	}

	return &PhotoView{
		ID:           photo.ID,
		ImageURL:     url,
		StoragePath:  photo.ImagePath,
		ReceiverName: photo.ReceiverName(),
		ReceivedAt:   photo.ReceivedAt,
		Location:     photo.Location,
		CreatedAt:    photo.CreatedAt,
		ExpiresAt:    photo.ExpiresAt,
	}, nil
}

// ResolveImageURL returns a readable URL for the photo, minting and caching
// a signed URL when needed. If minting fails the legacy URL is used.
func (s *PhotoService) ResolveImageURL(ctx context.Context, photo *models.Photo) (string, error) {
	legacy := ""
	if photo.LegacyImageURL != nil {
		legacy = *photo.LegacyImageURL
	}
	if photo.ImagePath == nil || *photo.ImagePath == "" {
		return legacy, nil
	}
	path := *photo.ImagePath

	if url, ok := s.urls.Get(path); ok {
		return url, nil
	}

	url, err := s.objects.PresignGet(ctx, path, s.signedURLTTL)
	if err != nil {
		if legacy != "" {
			log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Signed URL failed, using legacy URL")
			return legacy, nil
		}
		return "", unavailable(err)
	}

	s.urls.Set(path, url, s.signedURLTTL)
	return url, nil
}

// ReceiveInput is who receives a photo and optionally where.
type ReceiveInput struct {
	Receiver models.Receiver
	Location *models.Location
}

// ReceivePhoto records the first receipt of a photo. It succeeds at most once
// per photo; any failed precondition returns an error wrapping
// ErrReceiveRejected together with ErrNotFound, ErrExpired or
// ErrAlreadyReceived.
func (s *PhotoService) ReceivePhoto(ctx context.Context, id string, in ReceiveInput) (*models.Photo, error) {
	receiver, err := validateReceiver(in.Receiver)
	if err != nil {
		return nil, err
	}
	if err := validateLocation(in.Location); err != nil {
		return nil, err
	}

	now := s.now()
	photo, ok, err := s.photos.MarkReceived(ctx, id, repository.ReceiveUpdate{
		Receiver: receiver,
		Location: in.Location,
		At:       now,
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if !ok {
		cause := s.rejectionCause(ctx, id, now)
		log.Info().
			Str("photo_id", id).
			AnErr("cause", cause).
			Msg("Receive rejected")
		if cause == nil {
			return nil, apperrors.ErrReceiveRejected
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrReceiveRejected, cause)
	}

	log.Info().
		Str("photo_id", photo.ID).
		Bool("authenticated", receiver.Kind() == models.ReceiverUser).
		Msg("Photo received")

	if s.notifier != nil && photo.OwnerID != nil {
		s.notifier.NotifyPhotoReceived(*photo.OwnerID, photo)
	}

	return photo, nil
}

// rejectionCause explains why a conditional receive matched nothing.
func (s *PhotoService) rejectionCause(ctx context.Context, id string, now time.Time) error {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNotFound
		}
		log.Warn().Err(err).Str("photo_id", id).Msg("Failed to classify rejected receive")
		return nil
	}
	if !photo.ExpiresAt.After(now) {
		return apperrors.ErrExpired
	}
	return apperrors.ErrAlreadyReceived
}

func validateReceiver(r models.Receiver) (models.Receiver, error) {
	switch r.Kind() {
	case models.ReceiverGuest:
		name := strings.TrimSpace(r.Name())
		if name == "" {
			return r, fmt.Errorf("receiverName is required: %w", apperrors.ErrValidation)
		}
		if utf8.RuneCountInString(name) > maxReceiverName {
			return r, fmt.Errorf("receiverName must be at most %d characters: %w", maxReceiverName, apperrors.ErrValidation)
		}
		return models.GuestReceiver(name), nil
	case models.ReceiverUser:
		if r.UserID() == "" {
			return r, fmt.Errorf("receiver user id is required: %w", apperrors.ErrValidation)
		}
		return r, nil
	default:
		return r, fmt.Errorf("receiver is required: %w", apperrors.ErrValidation)
	}
}

func validateLocation(l *models.Location) error {
	if l == nil {
		return nil
	}
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("location out of range: %w", apperrors.ErrValidation)
	}
	return nil
}

// AuthStatus tells how a photo was completed.
type AuthStatus string

const (
	AuthStatusAuthenticated AuthStatus = "authenticated"
	AuthStatusGuest         AuthStatus = "guest"
)

// CompleteInput is the receive request of the /complete flow. A signed-in
// caller receives as themselves; otherwise ReceiverName is required.
type CompleteInput struct {
	CallerUserID string
	ReceiverName string
	Location     *models.Location
}

// CompletePhoto receives a photo as the caller if signed in, else as a guest.
func (s *PhotoService) CompletePhoto(ctx context.Context, id string, in CompleteInput) (*models.Photo, AuthStatus, error) {
	receiver := models.GuestReceiver(in.ReceiverName)
	status := AuthStatusGuest
	if in.CallerUserID != "" {
		receiver = models.UserReceiver(in.CallerUserID)
		status = AuthStatusAuthenticated
	}

	photo, err := s.ReceivePhoto(ctx, id, ReceiveInput{Receiver: receiver, Location: in.Location})
	if err != nil {
		return nil, status, err
	}
	return photo, status, nil
}

// ClaimPhoto binds a received photo to the caller's account. Rules are
// checked in order: not found, expired, owned by someone else, already owned
// by the caller (success without a write), no guest name recorded.
func (s *PhotoService) ClaimPhoto(ctx context.Context, id, userID string) (*models.Photo, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	photo, err := s.GetPhoto(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	done, err := evaluateClaim(photo, userID, now)
	if err != nil {
		return nil, err
	}
	if done {
		return photo, nil
	}

	claimed, ok, err := s.photos.Claim(ctx, id, userID, now)
	if err != nil {
		return nil, storageErr(err)
	}
	if ok {
		log.Info().
			Str("photo_id", id).
			Str("user_id", userID).
			Msg("Photo claimed")
		return claimed, nil
	}

	// The row changed between read and write; explain it from fresh state.
	photo, err = s.GetPhoto(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err = evaluateClaim(photo, userID, s.now())
	if err != nil {
		return nil, err
	}
	if done {
		return photo, nil
	}
	return nil, fmt.Errorf("photo %s: %w", id, apperrors.ErrAlreadyClaimed)
}

// evaluateClaim applies the claim rules to a loaded photo. done means the
// caller already owns it and nothing needs writing.
func evaluateClaim(photo *models.Photo, userID string, now time.Time) (bool, error) {
	if !photo.ExpiresAt.After(now) {
		return false, fmt.Errorf("photo %s: %w", photo.ID, apperrors.ErrExpired)
	}
	if photo.OwnerID != nil && *photo.OwnerID != "" {
		if *photo.OwnerID != userID {
			return false, fmt.Errorf("photo %s: %w", photo.ID, apperrors.ErrAlreadyClaimed)
		}
		return true, nil
	}
	// Only a guest receipt can be claimed; a user receipt is already bound.
	if name := photo.ReceiverName(); !photo.IsReceived || name == nil || *name == "" {
		return false, fmt.Errorf("photo %s: %w", photo.ID, apperrors.ErrNotYetReceived)
	}
	return false, nil
}

// CleanupExpired deletes photos past their expiry and returns how many were
// removed. Their objects and cached URLs are dropped best-effort.
func (s *PhotoService) CleanupExpired(ctx context.Context) (int, error) {
	count, paths, err := s.photos.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, unavailable(err)
	}

	for _, path := range paths {
		s.urls.Delete(path)
		if err := s.objects.Delete(ctx, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to delete expired photo object")
		}
	}

	return count, nil
}

// ListMyPhotos retrieves photos the user owns or received, with pagination
func (s *PhotoService) ListMyPhotos(ctx context.Context, userID string, limit, offset int) ([]*models.Photo, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	photos, total, err := s.photos.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, unavailable(err)
	}
	return photos, total, nil
}

// PhotoRecord is the JSON form of a photo returned after mutations.
type PhotoRecord struct {
	ID             string           `json:"id"`
	OwnerID        *string          `json:"ownerId"`
	DeviceID       *string          `json:"deviceId,omitempty"`
	StoragePath    *string          `json:"storagePath"`
	ImageURL       string           `json:"imageUrl,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	IsReceived     bool             `json:"isReceived"`
	ReceiverName   *string          `json:"receiverName"`
	ReceiverUserID *string          `json:"receiverUserId"`
	ReceivedAt     *time.Time       `json:"receivedAt"`
	Location       *models.Location `json:"location"`
}

// NewPhotoRecord converts a photo to its JSON record.
func NewPhotoRecord(photo *models.Photo) PhotoRecord {
	return PhotoRecord{
		ID:             photo.ID,
		OwnerID:        photo.OwnerID,
		DeviceID:       photo.DeviceID,
		StoragePath:    photo.ImagePath,
		CreatedAt:      photo.CreatedAt,
		ExpiresAt:      photo.ExpiresAt,
		IsReceived:     photo.IsReceived,
		ReceiverName:   photo.ReceiverName(),
		ReceiverUserID: photo.ReceiverUserID(),
		ReceivedAt:     photo.ReceivedAt,
		Location:       photo.Location,
	}
}

// storageErr passes domain errors through and marks everything else as a
// storage failure.
func storageErr(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
}
