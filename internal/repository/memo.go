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

// MemoRepository handles database operations for photo memos
type MemoRepository struct {
	db DB
}

// NewMemoRepository creates a new memo repository
func NewMemoRepository(db DB) *MemoRepository {
	return &MemoRepository{db: db}
}

// Get retrieves the memo a user keeps for a photo
func (r *MemoRepository) Get(ctx context.Context, photoID, userID string) (*models.PhotoMemo, error) {
	query := `
		SELECT photo_id, user_id, memo, is_reunited, updated_at
		FROM photo_memos
		WHERE photo_id = $1 AND user_id = $2
	`
	var memo models.PhotoMemo
	err := r.db.QueryRow(ctx, query, photoID, userID).Scan(
		&memo.PhotoID, &memo.UserID, &memo.Memo, &memo.IsReunited, &memo.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("memo not found: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get memo: %w", err)
	}
	return &memo, nil
}

// UpsertMemo sets the memo text, creating the row if needed. The reunion
// flag of an existing row is kept.
func (r *MemoRepository) UpsertMemo(ctx context.Context, photoID, userID string, text *string, now time.Time) (*models.PhotoMemo, error) {
	query := `
		INSERT INTO photo_memos (photo_id, user_id, memo, is_reunited, updated_at)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (photo_id, user_id)
		DO UPDATE SET memo = EXCLUDED.memo, updated_at = EXCLUDED.updated_at
		RETURNING photo_id, user_id, memo, is_reunited, updated_at
	`
	var memo models.PhotoMemo
	err := r.db.QueryRow(ctx, query, photoID, userID, text, now).Scan(
		&memo.PhotoID, &memo.UserID, &memo.Memo, &memo.IsReunited, &memo.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert memo: %w", err)
	}
	return &memo, nil
}

// SetReunited sets the reunion flag, creating the row if needed. The memo
// text of an existing row is kept.
func (r *MemoRepository) SetReunited(ctx context.Context, photoID, userID string, reunited bool, now time.Time) (*models.PhotoMemo, error) {
	query := `
		INSERT INTO photo_memos (photo_id, user_id, memo, is_reunited, updated_at)
		VALUES ($1, $2, NULL, $3, $4)
		ON CONFLICT (photo_id, user_id)
		DO UPDATE SET is_reunited = EXCLUDED.is_reunited, updated_at = EXCLUDED.updated_at
		RETURNING photo_id, user_id, memo, is_reunited, updated_at
	`
	var memo models.PhotoMemo
	err := r.db.QueryRow(ctx, query, photoID, userID, reunited, now).Scan(
		&memo.PhotoID, &memo.UserID, &memo.Memo, &memo.IsReunited, &memo.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set reunion flag: %w", err)
	}
	return &memo, nil
}

// Delete deletes a user's memo for a photo
func (r *MemoRepository) Delete(ctx context.Context, photoID, userID string) error {
	query := `DELETE FROM photo_memos WHERE photo_id = $1 AND user_id = $2`
	result, err := r.db.Exec(ctx, query, photoID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete memo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("memo not found: %w", apperrors.ErrNotFound)
	}
	return nil
}
