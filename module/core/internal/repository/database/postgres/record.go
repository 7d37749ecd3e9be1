package postgres

import (
	"context"
	"database/sql"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/database"
)

var _ database.RecordRepository = (*RecordRepo)(nil)

const createTable = `CREATE TABLE IF NOT EXISTS drone_records (
	id BIGSERIAL PRIMARY KEY,
	device_id TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
)`

type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// Migrate creates the archive table when missing.
func (r *RecordRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createTable)
	return err
}

func (r *RecordRepo) Insert(ctx context.Context, entry *domain.RecordEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO drone_records (device_id, latitude, longitude, received_at) VALUES ($1, $2, $3, $4)`,
		entry.DeviceID, entry.Latitude, entry.Longitude, entry.ReceivedAt,
	)
	return err
}

func (r *RecordRepo) GetHistory(ctx context.Context, query *domain.ArchiveQuery) ([]domain.RecordEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, latitude, longitude, received_at FROM drone_records WHERE device_id = $1 AND received_at >= $2 AND received_at <= $3 ORDER BY id ASC`,
		query.DeviceID, query.Start, query.End,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.RecordEntry
	for rows.Next() {
		var e domain.RecordEntry
		if err := rows.Scan(&e.DeviceID, &e.Latitude, &e.Longitude, &e.ReceivedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
