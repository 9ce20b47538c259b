package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "solana-trader/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing, applies
// the price snapshot schema and returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	if cerr := admin.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close admin connection: %w", cerr)
	}
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	exec := func(ctx context.Context, stmt string) error { return conn.Exec(ctx, stmt) }
	if _, err := Apply(ctx, ClickhouseFS, "clickhouse", PerStatement, exec); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
