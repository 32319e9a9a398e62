package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := Account{
		Profile: "p1",
		Service: browser.ServiceWhatsApp,
		Enabled: true,
	}
	require.NoError(t, db.Upsert(ctx, a))

	got, err := db.Get(ctx, AccountID("p1", browser.ServiceWhatsApp))
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Profile)
	assert.Equal(t, browser.ServiceWhatsApp, got.Service)
	assert.True(t, got.Enabled)
	assert.Equal(t, "unknown", got.Status)
	assert.True(t, got.LastCheckedAt.IsZero())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get(context.Background(), "nope/whatsapp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, Account{Profile: "p1", Service: browser.ServiceTelegram, Enabled: true}))
	id := AccountID("p1", browser.ServiceTelegram)

	checkedAt := time.Now().Truncate(time.Second)
	require.NoError(t, db.UpdateStatus(ctx, id, "logged_in", checkedAt))

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "logged_in", got.Status)
	assert.Equal(t, checkedAt.Unix(), got.LastCheckedAt.Unix())

	assert.ErrorIs(t, db.UpdateStatus(ctx, "missing/telegram", "error", checkedAt), ErrNotFound)
}

func TestSetEnabledAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, Account{Profile: "p1", Service: browser.ServiceWhatsApp, Enabled: true}))
	id := AccountID("p1", browser.ServiceWhatsApp)

	require.NoError(t, db.SetEnabled(ctx, id, false))
	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, db.Delete(ctx, id))
	_, err = db.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.Delete(ctx, id), ErrNotFound)
}

func TestListOrdering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, a := range []Account{
		{Profile: "b", Service: browser.ServiceWhatsApp, Enabled: true},
		{Profile: "a", Service: browser.ServiceTelegram, Enabled: true},
		{Profile: "a", Service: browser.ServiceWhatsApp, Enabled: false},
	} {
		require.NoError(t, db.Upsert(ctx, a))
	}

	list, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a/telegram", list[0].ID)
	assert.Equal(t, "a/whatsapp", list[1].ID)
	assert.Equal(t, "b/whatsapp", list[2].ID)
}

func TestUpsertReplacesExisting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Upsert(ctx, Account{Profile: "p1", Service: browser.ServiceWhatsApp, Enabled: true}))
	require.NoError(t, db.Upsert(ctx, Account{Profile: "p1", Service: browser.ServiceWhatsApp, Enabled: false, Status: "error"}))

	list, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)
	assert.Equal(t, "error", list[0].Status)
}
