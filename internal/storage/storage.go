package storage

import (
	"context"

	"uewatch/internal/domain"
)

// EventArchive persists emitted UpdateEvents for later inspection. The
// archive is write-once per (channel, message id); re-saving an event is a
// no-op.
type EventArchive interface {
	Save(ctx context.Context, ev domain.UpdateEvent) error
	Recent(ctx context.Context, limit int) ([]domain.UpdateEvent, error)
}
