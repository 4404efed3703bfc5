package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "tomodachi-cheki/internal/errors"
	"tomodachi-cheki/internal/models"
)

// MemoryPhotoRepository keeps photos in process memory. Conditional updates
// run under one mutex, so they are atomic within the process.
type MemoryPhotoRepository struct {
	mu     sync.Mutex
	photos map[string]*models.Photo
}

// NewMemoryPhotoRepository creates an empty in-memory photo repository
func NewMemoryPhotoRepository() *MemoryPhotoRepository {
	return &MemoryPhotoRepository{photos: make(map[string]*models.Photo)}
}

func (r *MemoryPhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.photos[photo.ID]; exists {
		return fmt.Errorf("photo %s already exists: %w", photo.ID, apperrors.ErrConflict)
	}
	p := clonePhoto(photo)
	p.IsReceived = false
	p.UpdatedAt = p.CreatedAt
	r.photos[photo.ID] = p
	return nil
}

func (r *MemoryPhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, fmt.Errorf("photo not found: %w", apperrors.ErrNotFound)
	}
	return clonePhoto(p), nil
}

func (r *MemoryPhotoRepository) MarkReceived(ctx context.Context, id string, upd ReceiveUpdate) (*models.Photo, bool, error) {
	if upd.Receiver.IsNone() {
		return nil, false, fmt.Errorf("receiver is required: %w", apperrors.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok || p.IsReceived || !p.ExpiresAt.After(upd.At) {
		return nil, false, nil
	}

	at := upd.At
	p.IsReceived = true
	p.ReceivedAt = &at
	p.Receiver = upd.Receiver
	p.GuestName = nil
	p.Location = cloneLocation(upd.Location)
	p.UpdatedAt = at
	return clonePhoto(p), true, nil
}

func (r *MemoryPhotoRepository) Claim(ctx context.Context, id, userID string, now time.Time) (*models.Photo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok || !p.IsReceived || !p.ExpiresAt.After(now) {
		return nil, false, nil
	}
	if p.OwnerID != nil && *p.OwnerID != userID {
		return nil, false, nil
	}
	if name := p.ReceiverName(); name == nil || *name == "" {
		return nil, false, nil
	}
	if uid := p.ReceiverUserID(); uid != nil && *uid != userID {
		return nil, false, nil
	}

	owner := userID
	p.OwnerID = &owner
	p.SetReceiverColumns(p.ReceiverName(), &owner)
	p.UpdatedAt = now
	return clonePhoto(p), true, nil
}

func (r *MemoryPhotoRepository) DeleteExpired(ctx context.Context, now time.Time) (int, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	var paths []string
	for id, p := range r.photos {
		if p.ExpiresAt.Before(now) {
			count++
			if p.ImagePath != nil && *p.ImagePath != "" {
				paths = append(paths, *p.ImagePath)
			}
			delete(r.photos, id)
		}
	}
	sort.Strings(paths)
	return count, paths, nil
}

func (r *MemoryPhotoRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Photo, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Photo
	for _, p := range r.photos {
		owner := p.OwnerID != nil && *p.OwnerID == userID
		receiver := p.Receiver.Kind() == models.ReceiverUser && p.Receiver.UserID() == userID
		if owner || receiver {
			matched = append(matched, clonePhoto(p))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func clonePhoto(p *models.Photo) *models.Photo {
	c := *p
	c.OwnerID = cloneString(p.OwnerID)
	c.DeviceID = cloneString(p.DeviceID)
	c.ImagePath = cloneString(p.ImagePath)
	c.LegacyImageURL = cloneString(p.LegacyImageURL)
	c.GuestName = cloneString(p.GuestName)
	c.Location = cloneLocation(p.Location)
	if p.ReceivedAt != nil {
		t := *p.ReceivedAt
		c.ReceivedAt = &t
	}
	return &c
}

func cloneLocation(l *models.Location) *models.Location {
	if l == nil {
		return nil
	}
	c := *l
	c.Address = cloneString(l.Address)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

type memoKey struct {
	photoID string
	userID  string
}

// MemoryMemoRepository keeps photo memos in process memory.
type MemoryMemoRepository struct {
	mu    sync.Mutex
	memos map[memoKey]*models.PhotoMemo
}

// NewMemoryMemoRepository creates an empty in-memory memo repository
func NewMemoryMemoRepository() *MemoryMemoRepository {
	return &MemoryMemoRepository{memos: make(map[memoKey]*models.PhotoMemo)}
}

func (r *MemoryMemoRepository) Get(ctx context.Context, photoID, userID string) (*models.PhotoMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.memos[memoKey{photoID, userID}]
	if !ok {
		return nil, fmt.Errorf("memo not found: %w", apperrors.ErrNotFound)
	}
	return cloneMemo(m), nil
}

func (r *MemoryMemoRepository) UpsertMemo(ctx context.Context, photoID, userID string, text *string, now time.Time) (*models.PhotoMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.getOrCreate(photoID, userID)
	m.Memo = cloneString(text)
	m.UpdatedAt = now
	return cloneMemo(m), nil
}

func (r *MemoryMemoRepository) SetReunited(ctx context.Context, photoID, userID string, reunited bool, now time.Time) (*models.PhotoMemo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.getOrCreate(photoID, userID)
	m.IsReunited = reunited
	m.UpdatedAt = now
	return cloneMemo(m), nil
}

func (r *MemoryMemoRepository) Delete(ctx context.Context, photoID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoKey{photoID, userID}
	if _, ok := r.memos[key]; !ok {
		return fmt.Errorf("memo not found: %w", apperrors.ErrNotFound)
	}
	delete(r.memos, key)
	return nil
}

// getOrCreate must be called with mu held.
func (r *MemoryMemoRepository) getOrCreate(photoID, userID string) *models.PhotoMemo {
	key := memoKey{photoID, userID}
	m, ok := r.memos[key]
	if !ok {
		m = &models.PhotoMemo{PhotoID: photoID, UserID: userID}
		r.memos[key] = m
	}
	return m
}

func cloneMemo(m *models.PhotoMemo) *models.PhotoMemo {
	c := *m
	c.Memo = cloneString(m.Memo)
	return &c
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewMemoryUserRepository creates an empty in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*models.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("email already registered: %w", apperrors.ErrConflict)
		}
	}
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", apperrors.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", apperrors.ErrNotFound)
}
