package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"b2bpayment/internal/config"
	"b2bpayment/internal/db"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		logger.Fatal("ensure schema table failed", zap.Error(err))
	}

	files, err := listSQLFiles("migrations")
	if err != nil {
		logger.Fatal("list migrations failed", zap.Error(err))
	}

	for _, file := range files {
		var exists bool
		row := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, file)
		if err := row.Scan(&exists); err != nil {
			logger.Fatal("check migration failed", zap.String("file", file), zap.Error(err))
		}
		if exists {
			continue
		}

		if err := applyMigration(ctx, pool, file); err != nil {
			logger.Fatal("apply migration failed", zap.String("file", file), zap.Error(err))
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			logger.Fatal("mark migration failed", zap.String("file", file), zap.Error(err))
		}
		logger.Info("applied migration", zap.String("file", file))
	}
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyMigration(ctx context.Context, pool *db.Pool, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	_, err = pool.Exec(ctx, string(data))
	return err
}
