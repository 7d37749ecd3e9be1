package publisher

import (
	"context"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

type EventPublisher interface {
	PublishAlert(ctx context.Context, alert *domain.RegionAlert) error
	PublishRecord(ctx context.Context, entry *domain.RecordEntry) error
	PublishEvent(ctx context.Context, ev *domain.DeviceEvent) error
}
