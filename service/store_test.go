package service

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/igor04091968/sing-l2tp/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *StoreService {
	t.Helper()
	db, err := database.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStoreService(db)
}

func TestStoreCreateGetList(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.Get("tunnel1")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = store.Create("tunnel2")
	require.NoError(t, err)
	cfg, err = store.Create("tunnel1")
	require.NoError(t, err)
	assert.Equal(t, "l2tp-tunnel1", cfg.InterfaceName)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"tunnel1", "tunnel2"}, names)

	_, err = store.Create("tunnel1")
	assert.Error(t, err)

	_, err = store.Create("Not A Slug")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestStoreRejectsInterfaceCollision(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("datacenter-east")
	require.NoError(t, err)
	_, err = store.Create("datacenter-west")
	assert.ErrorContains(t, err, "l2tp-datacente")
}

func TestStoreSaveAndDelete(t *testing.T) {
	store := newTestStore(t)
	cfg, err := store.Create("tunnel1")
	require.NoError(t, err)

	cfg.LocalIP = "1.2.3.4"
	cfg.AddPort(443)
	cfg.AddPort(80)
	require.NoError(t, store.Save(cfg))

	loaded, err := store.MustGet("tunnel1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", loaded.LocalIP)
	assert.Equal(t, []int{80, 443}, loaded.ForwardedPorts)

	cfg.LocalIP = "bogus"
	assert.Error(t, store.Save(cfg))

	require.NoError(t, store.Delete("tunnel1"))
	require.NoError(t, store.Delete("tunnel1"))
	_, err = store.MustGet("tunnel1")
	assert.True(t, errors.Is(err, ErrTunnelNotFound))

	// name is free again after a delete
	_, err = store.Create("tunnel1")
	assert.NoError(t, err)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
