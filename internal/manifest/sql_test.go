package manifest

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/p2g/internal/checkpoint"
	"github.com/livinlefevreloca/p2g/internal/db"
	"github.com/livinlefevreloca/p2g/internal/model"
	"github.com/livinlefevreloca/p2g/internal/testutil"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.OpenWithConfig(db.Config{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	s := NewSQLStore(database, testutil.NewTestLogger().Logger())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	entities := []model.Entity{
		{Kind: model.KindCheck, ID: 1, Name: "web", Hostname: "example.com"},
		{Kind: model.KindTransaction, ID: 7, Name: "checkout", Group: "payments"},
	}
	probes := []model.Probe{{ID: 10, Name: "Frankfurt", City: "Frankfurt", CountryISO: "DE", Region: "EU"}}
	require.NoError(t, s.SaveCatalog(ctx, entities, probes))

	gotEntities, err := s.LoadEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities, gotEntities)

	gotProbes, err := s.LoadProbes(ctx)
	require.NoError(t, err)
	assert.Equal(t, probes, gotProbes)

	check := model.EntityKey{Kind: model.KindCheck, ID: 1}
	tm := model.EntityKey{Kind: model.KindTransaction, ID: 7}
	cps := checkpoint.Map{
		{Entity: check, Category: model.CategoryResults}:  model.NewCheckpoint(10, 20),
		{Entity: tm, Category: model.CategoryOutage}:      model.NewCheckpoint(100, 300),
		{Entity: tm, Category: model.CategoryPerformance}: {},
	}
	require.NoError(t, s.SaveCheckpoints(ctx, cps))

	got, err := s.LoadCheckpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, got[checkpoint.Key{Entity: tm, Category: model.CategoryOutage}].Equal(model.NewCheckpoint(100, 300)))
}

func TestSQLStore_CatalogRefreshDropsRemovedCheckpoints(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	a := model.Entity{Kind: model.KindCheck, ID: 1, Name: "a"}
	b := model.Entity{Kind: model.KindCheck, ID: 2, Name: "b"}
	require.NoError(t, s.SaveCatalog(ctx, []model.Entity{a, b}, nil))
	require.NoError(t, s.SaveCheckpoints(ctx, checkpoint.Map{
		{Entity: a.Key(), Category: model.CategoryResults}: model.NewCheckpoint(1, 2),
		{Entity: b.Key(), Category: model.CategoryResults}: model.NewCheckpoint(3, 4),
	}))

	require.NoError(t, s.SaveCatalog(ctx, []model.Entity{a}, nil))

	got, err := s.LoadCheckpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, checkpoint.Key{Entity: a.Key(), Category: model.CategoryResults})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NewTestLogger().Logger()

	fileStore, err := Open(Config{Driver: DriverFile, Path: dir + "/m.json"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fileStore)

	sqlStore, err := Open(Config{Driver: DriverSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	defer sqlStore.Close()
	assert.IsType(t, &SQLStore{}, sqlStore)

	_, err = Open(Config{Driver: "redis", Path: "x"}, logger)
	assert.Error(t, err)

	_, err = Open(Config{Driver: DriverFile}, logger)
	assert.Error(t, err)
}
