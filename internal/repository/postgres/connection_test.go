package postgres

import (
	"context"
	"net"
	"testing"
	"time"

	"agent-runtime/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func unreachableConfig(t *testing.T) *config.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return &config.Config{Postgres: config.PostgresConfig{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "runtime",
		Password:       "secret",
		DBName:         "runtime",
		SSLMode:        "disable",
		MigrationsDir:  "../../../db/migrations",
		MigrateTimeout: 2 * time.Second,
		QueryTimeout:   2 * time.Second,
		MaxConns:       2,
	}}
}

func TestOpenPoolReleasesPoolWhenPingFails(t *testing.T) {
	ctx := context.Background()
	repo := New(ctx, zap.NewNop().Sugar(), unreachableConfig(t))

	pool, err := repo.openPool(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ping pool")
	require.Nil(t, pool)
}

func TestOnStartFailsWithoutServer(t *testing.T) {
	ctx := context.Background()
	repo := New(ctx, zap.NewNop().Sugar(), unreachableConfig(t))

	require.Error(t, repo.OnStart(ctx))
	require.Nil(t, repo.db)
	require.NoError(t, repo.OnStop(ctx))
}
