package database

import (
	"context"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

type RecordRepository interface {
	Insert(ctx context.Context, entry *domain.RecordEntry) error
	GetHistory(ctx context.Context, query *domain.ArchiveQuery) ([]domain.RecordEntry, error)
}
