package persistence

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/config"
	"github.com/mernacademy/student-auth/internal/persistence/migrations"
)

func stubGooseUp(t *testing.T, fn func(ctx context.Context, db *sql.DB, dir string) error) {
	t.Helper()
	orig := gooseUp
	gooseUp = fn
	t.Cleanup(func() { gooseUp = orig })
}

func TestRunMigrations_UsesEmbeddedRoot(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var gotDir string
	stubGooseUp(t, func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	})

	require.NoError(t, RunMigrations(context.Background(), db, zap.NewNop()))
	assert.Equal(t, ".", gotDir)
}

func TestRunMigrations_WrapsError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stubGooseUp(t, func(context.Context, *sql.DB, string) error { return errors.New("boom") })

	err = RunMigrations(context.Background(), db, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunMigrations_NilDBSkips(t *testing.T) {
	stubGooseUp(t, func(context.Context, *sql.DB, string) error {
		t.Fatal("goose must not run without a database")
		return nil
	})
	assert.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
}

func TestEmbeddedMigrations_ContainAccountsSchema(t *testing.T) {
	names, err := fs.Glob(migrations.Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := fs.ReadFile(migrations.Migrations, names[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS accounts")
	assert.Contains(t, string(body), "lower(email)")
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewMongo_RequiresURI(t *testing.T) {
	_, err := NewMongo(context.Background(), config.MongoConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedis_PingAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	r := NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	defer r.Close()

	assert.NoError(t, r.Ping(context.Background()))

	var nilRedis *Redis
	assert.Error(t, nilRedis.Ping(context.Background()))
}

func TestSplitAddrs(t *testing.T) {
	assert.Equal(t, []string{"a:6379", "b:6379"}, splitAddrs(" a:6379, ,b:6379 "))
	assert.Nil(t, splitAddrs(""))
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverMemory}}

	store, err := OpenStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close(context.Background())

	require.NotNil(t, store.Accounts)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}

	_, err := OpenStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
