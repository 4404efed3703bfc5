package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "tomodachi-cheki/internal/errors"
	"tomodachi-cheki/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoFixture(t *testing.T) (*MemoService, *photoFixture) {
	t.Helper()
	pf := newPhotoFixture(t)
	svc := NewMemoService(repository.NewMemoryMemoRepository(), pf.photos, pf.clock.Now)
	return svc, pf
}

func TestMemo_RoundTrip(t *testing.T) {
	svc, pf := newMemoFixture(t)
	ctx := context.Background()
	photo := pf.create(t, CreatePhotoInput{DeviceID: "device-1"})

	view, err := svc.GetMemo(ctx, photo.ID, "user-1")
	require.NoError(t, err)
	assert.Nil(t, view.Memo)
	assert.False(t, view.IsReunited)
	assert.Nil(t, view.UpdatedAt)

	view, err = svc.UpsertMemo(ctx, photo.ID, "user-1", "met at the station")
	require.NoError(t, err)
	assert.Equal(t, "met at the station", *view.Memo)

	view, err = svc.GetMemo(ctx, photo.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "met at the station", *view.Memo)

	other, err := svc.GetMemo(ctx, photo.ID, "user-2")
	require.NoError(t, err)
	assert.Nil(t, other.Memo, "memos are private per user")

	require.NoError(t, svc.DeleteMemo(ctx, photo.ID, "user-1"))
	view, err = svc.GetMemo(ctx, photo.ID, "user-1")
	require.NoError(t, err)
	assert.Nil(t, view.Memo)

	err = svc.DeleteMemo(ctx, photo.ID, "user-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMemo_Validation(t *testing.T) {
	svc, pf := newMemoFixture(t)
	ctx := context.Background()
	photo := pf.create(t, CreatePhotoInput{DeviceID: "device-1"})

	_, err := svc.UpsertMemo(ctx, photo.ID, "user-1", strings.Repeat("め", 201))
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = svc.UpsertMemo(ctx, photo.ID, "user-1", strings.Repeat("め", 200))
	assert.NoError(t, err)

	_, err = svc.UpsertMemo(ctx, "missing", "user-1", "hi")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.UpsertMemo(ctx, photo.ID, "", "hi")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestReunion(t *testing.T) {
	svc, pf := newMemoFixture(t)
	ctx := context.Background()
	photo := pf.create(t, CreatePhotoInput{DeviceID: "device-1"})

	reunited, err := svc.GetReunion(ctx, photo.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, reunited)

	_, err = svc.UpsertMemo(ctx, photo.ID, "user-1", "note")
	require.NoError(t, err)
	view, err := svc.SetReunion(ctx, photo.ID, "user-1", true)
	require.NoError(t, err)
	assert.True(t, view.IsReunited)
	assert.Equal(t, "note", *view.Memo, "setting the flag keeps the memo")

	reunited, err = svc.GetReunion(ctx, photo.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, reunited)

	_, err = svc.SetReunion(ctx, "missing", "user-1", true)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
