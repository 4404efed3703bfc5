package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	apperrors "tomodachi-cheki/internal/errors"
	"tomodachi-cheki/internal/models"
)

// MemoStore is the persistence behind per-user photo memos.
type MemoStore interface {
	Get(ctx context.Context, photoID, userID string) (*models.PhotoMemo, error)
	UpsertMemo(ctx context.Context, photoID, userID string, text *string, now time.Time) (*models.PhotoMemo, error)
	SetReunited(ctx context.Context, photoID, userID string, reunited bool, now time.Time) (*models.PhotoMemo, error)
	Delete(ctx context.Context, photoID, userID string) error
}

// PhotoLookup checks that a photo exists.
type PhotoLookup interface {
	GetByID(ctx context.Context, id string) (*models.Photo, error)
}

// MemoView is what a user sees of their memo for a photo. A missing row reads
// as an empty memo that is not reunited.
type MemoView struct {
	PhotoID    string     `json:"photo_id"`
	Memo       *string    `json:"memo"`
	IsReunited bool       `json:"is_reunited"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// MemoService handles memo and reunion flags
type MemoService struct {
	memos  MemoStore
	photos PhotoLookup
	now    func() time.Time
}

// NewMemoService creates a new memo service
func NewMemoService(memos MemoStore, photos PhotoLookup, now func() time.Time) *MemoService {
	if now == nil {
		now = time.Now
	}
	return &MemoService{memos: memos, photos: photos, now: now}
}

// GetMemo returns the user's memo for a photo, or the default view.
func (s *MemoService) GetMemo(ctx context.Context, photoID, userID string) (*MemoView, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	memo, err := s.memos.Get(ctx, photoID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &MemoView{PhotoID: photoID}, nil
		}
		return nil, unavailable(err)
	}
	return newMemoView(memo), nil
}

// UpsertMemo stores memo text for an existing photo. Empty text clears it.
func (s *MemoService) UpsertMemo(ctx context.Context, photoID, userID, text string) (*MemoView, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if utf8.RuneCountInString(text) > models.MaxMemoLength {
		return nil, fmt.Errorf("memo must be at most %d characters: %w", models.MaxMemoLength, apperrors.ErrValidation)
	}
	if err := s.requirePhoto(ctx, photoID); err != nil {
		return nil, err
	}

	var value *string
	if text != "" {
		value = &text
	}
	memo, err := s.memos.UpsertMemo(ctx, photoID, userID, value, s.now())
	if err != nil {
		return nil, unavailable(err)
	}
	return newMemoView(memo), nil
}

// DeleteMemo removes the user's memo row for a photo.
func (s *MemoService) DeleteMemo(ctx context.Context, photoID, userID string) error {
	if userID == "" {
		return apperrors.ErrUnauthorized
	}
	if err := s.memos.Delete(ctx, photoID, userID); err != nil {
		return storageErr(err)
	}
	return nil
}

// GetReunion reports whether the user marked a photo as reunited.
func (s *MemoService) GetReunion(ctx context.Context, photoID, userID string) (bool, error) {
	view, err := s.GetMemo(ctx, photoID, userID)
	if err != nil {
		return false, err
	}
	return view.IsReunited, nil
}

// SetReunion sets the reunion flag on an existing photo.
func (s *MemoService) SetReunion(ctx context.Context, photoID, userID string, reunited bool) (*MemoView, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if err := s.requirePhoto(ctx, photoID); err != nil {
		return nil, err
	}
	memo, err := s.memos.SetReunited(ctx, photoID, userID, reunited, s.now())
	if err != nil {
		return nil, unavailable(err)
	}
	return newMemoView(memo), nil
}

func (s *MemoService) requirePhoto(ctx context.Context, photoID string) error {
	if _, err := s.photos.GetByID(ctx, photoID); err != nil {
		return storageErr(err)
	}
	return nil
}

func newMemoView(m *models.PhotoMemo) *MemoView {
	updated := m.UpdatedAt
	return &MemoView{
		PhotoID:    m.PhotoID,
		Memo:       m.Memo,
		IsReunited: m.IsReunited,
		UpdatedAt:  &updated,
	}
}
