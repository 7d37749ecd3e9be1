package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPostgres opens the archive database. It returns nil when the archive is
// disabled.
func NewPostgres(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if !cfg.ArchiveEnabled {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
