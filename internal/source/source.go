package source

import (
	"context"
	"errors"

	"uewatch/internal/domain"
)

// ErrPushUnsupported is returned by SubscribeLive on sources that can only
// be polled.
var ErrPushUnsupported = errors.New("source: live subscription not supported")

// ErrNoAttachment is returned by DownloadAttachment when the message
// carries nothing downloadable.
var ErrNoAttachment = errors.New("source: message has no attachment")

// Source is the chat-platform collaborator the monitor drives.
//
// FetchRecent returns up to limit of the most recent channel messages in
// the order the platform provides them; callers must not assume novelty
// ordering beyond id-based dedup. SubscribeLive delivers messages as they
// arrive; at-least-once delivery is acceptable since the monitor dedups by
// id. DownloadAttachment saves the message's attachment under destPath
// (the implementation may append a file extension) and returns the final
// path.
type Source interface {
	Connect(ctx context.Context) error
	SubscribeLive(ctx context.Context) (<-chan domain.Message, error)
	FetchRecent(ctx context.Context, limit int) ([]domain.Message, error)
	DownloadAttachment(ctx context.Context, msg domain.Message, destPath string) (string, error)
	Close() error
}
