package service

import (
	"context"
	"time"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

type alertPublisher interface {
	PublishAlert(ctx context.Context, alert *domain.RegionAlert) error
}

// RegionService raises an alert for every record outside the legal region.
type RegionService struct {
	publisher alertPublisher
	box       domain.BoundingBox
}

func NewRegionService(pub alertPublisher, box domain.BoundingBox) *RegionService {
	return &RegionService{
		publisher: pub,
		box:       box,
	}
}

func (s *RegionService) Accept(ctx context.Context, rec domain.Record, receivedAt time.Time) error {
	if s.box.Contains(rec.Lat(), rec.Lon()) {
		return nil
	}
	alert := &domain.RegionAlert{
		DeviceID:  rec.DeviceID(),
		Event:     domain.RegionExit,
		Latitude:  rec.Lat(),
		Longitude: rec.Lon(),
		Timestamp: receivedAt.Unix(),
	}
	return s.publisher.PublishAlert(ctx, alert)
}
