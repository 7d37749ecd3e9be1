package service

import (
	"context"
	"time"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/database"
)

// ArchiveService writes accepted records behind the history. The archive is
// never read back into the history.
type ArchiveService struct {
	repo database.RecordRepository
}

func NewArchiveService(repo database.RecordRepository) *ArchiveService {
	return &ArchiveService{repo: repo}
}

func (s *ArchiveService) Accept(ctx context.Context, rec domain.Record, receivedAt time.Time) error {
	return s.repo.Insert(ctx, domain.NewRecordEntry(rec, receivedAt))
}

func (s *ArchiveService) GetHistory(ctx context.Context, query *domain.ArchiveQuery) ([]domain.RecordEntry, error) {
	return s.repo.GetHistory(ctx, query)
}
