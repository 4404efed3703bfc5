package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "tomodachi-cheki/internal/errors"
	"tomodachi-cheki/internal/models"

	"github.com/jackc/pgx/v5"
)

const photoColumns = `id, owner_id, device_id, image_path, legacy_image_url, created_at, expires_at,
		is_received, receiver_name, receiver_user_id, received_at, latitude, longitude, address, updated_at`

// ReceiveUpdate is the state written by a successful receive.
type ReceiveUpdate struct {
	Receiver models.Receiver
	Location *models.Location
	At       time.Time
}

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db DB
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create creates a new photo
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (id, owner_id, device_id, image_path, legacy_image_url,
			created_at, expires_at, is_received, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $6)
	`
	_, err := r.db.Exec(ctx, query,
		photo.ID, photo.OwnerID, photo.DeviceID, photo.ImagePath, photo.LegacyImageURL,
		photo.CreatedAt, photo.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// GetByID retrieves a photo by ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`

	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("photo not found: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// MarkReceived records the first receipt of a photo. The update only applies
// while the photo is unreceived and unexpired at upd.At; ok is false when
// nothing matched.
func (r *PhotoRepository) MarkReceived(ctx context.Context, id string, upd ReceiveUpdate) (*models.Photo, bool, error) {
	var receiverName, receiverUserID *string
	switch upd.Receiver.Kind() {
	case models.ReceiverGuest:
		name := upd.Receiver.Name()
		receiverName = &name
	case models.ReceiverUser:
		userID := upd.Receiver.UserID()
		receiverUserID = &userID
	default:
		return nil, false, fmt.Errorf("receiver is required: %w", apperrors.ErrValidation)
	}

	var lat, lng *float64
	var address *string
	if upd.Location != nil {
		lat, lng, address = &upd.Location.Latitude, &upd.Location.Longitude, upd.Location.Address
	}

	query := `
		UPDATE photos
		SET is_received = TRUE, received_at = $2, receiver_name = $3, receiver_user_id = $4,
			latitude = $5, longitude = $6, address = $7, updated_at = $2
		WHERE id = $1 AND is_received = FALSE AND expires_at > $2
		RETURNING ` + photoColumns

	photo, err := scanPhoto(r.db.QueryRow(ctx, query,
		id, upd.At, receiverName, receiverUserID, lat, lng, address,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to mark photo received: %w", err)
	}
	return photo, true, nil
}

// Claim binds a guest-received photo to userID. It only applies while the
// photo is unexpired at now, carries a receiver name and is unowned or already
// owned by userID; ok is false when nothing matched. receiver_name is left
// untouched.
func (r *PhotoRepository) Claim(ctx context.Context, id, userID string, now time.Time) (*models.Photo, bool, error) {
	query := `
		UPDATE photos
		SET owner_id = $2, receiver_user_id = $2, updated_at = $3
		WHERE id = $1 AND (owner_id IS NULL OR owner_id = $2) AND is_received = TRUE AND expires_at > $3
		  AND receiver_name IS NOT NULL AND receiver_name <> ''
		  AND (receiver_user_id IS NULL OR receiver_user_id = $2)
		RETURNING ` + photoColumns

	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id, userID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to claim photo: %w", err)
	}
	return photo, true, nil
}

// DeleteExpired deletes photos that expired before now. It returns the number
// of deleted rows and the storage paths they referenced.
func (r *PhotoRepository) DeleteExpired(ctx context.Context, now time.Time) (int, []string, error) {
	query := `DELETE FROM photos WHERE expires_at < $1 RETURNING image_path`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to delete expired photos: %w", err)
	}
	defer rows.Close()

	count := 0
	var paths []string
	for rows.Next() {
		var path *string
		if err := rows.Scan(&path); err != nil {
			return 0, nil, fmt.Errorf("failed to scan expired photo: %w", err)
		}
		count++
		if path != nil && *path != "" {
			paths = append(paths, *path)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating expired photos: %w", err)
	}

	return count, paths, nil
}

// ListByUser retrieves photos a user owns or received, newest first
func (r *PhotoRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Photo, int, error) {
	countQuery := `SELECT COUNT(*) FROM photos WHERE owner_id = $1 OR receiver_user_id = $1`
	var total int
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count photos: %w", err)
	}

	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE owner_id = $1 OR receiver_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, total, nil
}

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var (
		photo                        models.Photo
		receiverName, receiverUserID *string
		lat, lng                     *float64
		address                      *string
	)

	err := row.Scan(
		&photo.ID, &photo.OwnerID, &photo.DeviceID, &photo.ImagePath, &photo.LegacyImageURL,
		&photo.CreatedAt, &photo.ExpiresAt, &photo.IsReceived, &receiverName, &receiverUserID,
		&photo.ReceivedAt, &lat, &lng, &address, &photo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	photo.SetReceiverColumns(receiverName, receiverUserID)
	if lat != nil && lng != nil {
		photo.Location = &models.Location{Latitude: *lat, Longitude: *lng, Address: address}
	}

	return &photo, nil
}
