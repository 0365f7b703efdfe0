package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"digest-relay-go/internal/db"
	"digest-relay-go/internal/model"
	. "digest-relay-go/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenMemory()
	require.NoError(t, err)
	return gdb
}

func item(text, source string, id int64) model.Item {
	return model.Item{Text: text, SourceID: source, PlatformItemID: id, ObservedAt: time.Now()}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "ozon new fees from monday", NormalizeText("  OZON: new fees,   from Monday!! "))
	assert.Equal(t, NormalizeText("Price  drop\n\ntoday"), NormalizeText("price drop - today."))
	assert.Equal(t, "", NormalizeText("!!! ... ???"))
}

func TestFingerprintKey(t *testing.T) {
	a := FingerprintKey("Hello world", "chan_a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, FingerprintKey("hello,   WORLD", "chan_a"))
	assert.NotEqual(t, a, FingerprintKey("Hello world", "chan_b"))
}

func TestInsertIfAbsentIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewFingerprintRepository(setupDB(t))

	it := item("Ozon raises commission for electronics", "ozon_news", 101)

	inserted, err := repo.InsertIfAbsent(ctx, it, model.CategoryOzon)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, it, model.CategoryOzon)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	exists, err := repo.Exists(ctx, it.Text, it.SourceID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsertIfAbsentSameTextOtherSource(t *testing.T) {
	ctx := context.Background()
	repo := NewFingerprintRepository(setupDB(t))

	first, err := repo.InsertIfAbsent(ctx, item("Same announcement text here", "a", 1), model.CategoryOther)
	require.NoError(t, err)
	second, err := repo.InsertIfAbsent(ctx, item("Same announcement text here", "b", 1), model.CategoryOther)
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, second)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-40 * 24 * time.Hour)
	repo := NewFingerprintRepository(setupDB(t)).WithClock(func() time.Time { return clock })

	_, err := repo.InsertIfAbsent(ctx, item("an old post that should expire", "a", 1), model.CategoryOther)
	require.NoError(t, err)

	clock = now.Add(-time.Hour)
	_, err = repo.InsertIfAbsent(ctx, item("a fresh post that should stay", "a", 2), model.CategoryOther)
	require.NoError(t, err)

	clock = now
	purged, err := repo.PurgeOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// A purged item counts as new again
	inserted, err := repo.InsertIfAbsent(ctx, item("an old post that should expire", "a", 1), model.CategoryOther)
	require.NoError(t, err)
	assert.True(t, inserted)

	_, err = repo.PurgeOlderThan(ctx, 0)
	assert.Error(t, err)
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	repo := NewFingerprintRepository(setupDB(t)).WithClock(func() time.Time { return clock })

	for i, text := range []string{"first post in history", "second post in history", "third post in history"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		_, err := repo.InsertIfAbsent(ctx, item(text, "a", int64(i+1)), model.CategoryWildberries)
		require.NoError(t, err)
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third post in history", recent[0].Content)
	assert.Equal(t, "second post in history", recent[1].Content)
	assert.Equal(t, model.CategoryWildberries, recent[0].Category)

	none, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	gdb := setupDB(t)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	repo := NewFingerprintRepository(gdb)
	_, err = repo.InsertIfAbsent(context.Background(), item("text that cannot be stored", "a", 1), model.CategoryOther)
	require.Error(t, err)

	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.True(t, IsStorageError(err))
	assert.True(t, se.Temporary())
}

func TestCheckpointFirstRunMarker(t *testing.T) {
	repo := NewCheckpointRepository(setupDB(t))

	_, found, err := repo.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, model.SourceStateFirstRun, model.StateOf(found))
}

func TestCheckpointAdvanceMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(setupDB(t))

	advanced, err := repo.Advance(ctx, "ozon_news", 100, 5, "Ozon News")
	require.NoError(t, err)
	assert.True(t, advanced)

	advanced, err = repo.Advance(ctx, "ozon_news", 120, 3, "")
	require.NoError(t, err)
	assert.True(t, advanced)

	// A lower id is a no-op
	advanced, err = repo.Advance(ctx, "ozon_news", 90, 7, "")
	require.NoError(t, err)
	assert.False(t, advanced)

	cp, found, err := repo.Get(ctx, "ozon_news")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(120), cp.LastItemID)
	assert.Equal(t, int64(8), cp.ItemsSeenTotal)
	assert.Equal(t, "Ozon News", cp.Title)
	assert.Equal(t, model.SourceStateSteadyState, model.StateOf(found))

	// Same id with zero new items still counts as a run
	advanced, err = repo.Advance(ctx, "ozon_news", 120, 0, "")
	require.NoError(t, err)
	assert.True(t, advanced)

	_, err = repo.Advance(ctx, "ozon_news", 130, -1, "")
	assert.Error(t, err)
}

func TestCheckpointEmptyFirstRun(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(setupDB(t))

	advanced, err := repo.Advance(ctx, "quiet", 0, 0, "")
	require.NoError(t, err)
	assert.True(t, advanced)

	cp, found, err := repo.Get(ctx, "quiet")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, cp.LastItemID)
}

func TestCheckpointListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepository(setupDB(t))

	_, err := repo.Advance(ctx, "b", 2, 1, "")
	require.NoError(t, err)
	_, err = repo.Advance(ctx, "a", 1, 1, "")
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].SourceID)

	deleted, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, found, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPublishedPostWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewPublishedPostRepository(setupDB(t))
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, model.PublishedPost{
		TargetID:    "@digest",
		Content:     "weekly digest",
		PublishedAt: now.Add(-2 * time.Hour),
	}))

	hash := ContentHash("weekly digest")
	exists, err := repo.ExistsSince(ctx, hash, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsSince(ctx, hash, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsSince(ctx, ContentHash("other digest"), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, exists)

	latest, err := repo.Latest(ctx, 5)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, hash, latest[0].ContentHash)
}
