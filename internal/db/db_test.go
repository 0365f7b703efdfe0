package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digest-relay-go/internal/config"
	"digest-relay-go/internal/model"
)

func TestInitSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)

	assert.NoError(t, Ping(db))
	assert.True(t, db.Migrator().HasTable(&model.Fingerprint{}))
	assert.True(t, db.Migrator().HasTable(&model.SourceCheckpoint{}))
	assert.True(t, db.Migrator().HasTable(&model.PublishedPost{}))
	assert.True(t, db.Migrator().HasIndex(&model.Fingerprint{}, "ux_fingerprint_source_key"))
}

func TestInitUnknownDriver(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenMemoryIsolated(t *testing.T) {
	first, err := OpenMemory()
	require.NoError(t, err)
	second, err := OpenMemory()
	require.NoError(t, err)

	require.NoError(t, first.Create(&model.SourceCheckpoint{SourceID: "a"}).Error)

	var count int64
	require.NoError(t, second.Model(&model.SourceCheckpoint{}).Count(&count).Error)
	assert.Zero(t, count)
}
