package domain

import "time"

// Message is a single channel message as observed from a source. Immutable
// once constructed; ids are unique per channel and monotonically
// non-decreasing, though not necessarily gapless.
type Message struct {
	ID            int64
	Text          string
	Timestamp     time.Time
	HasAttachment bool
}

// UpdateEvent is produced exactly once per message that announces an
// Unreal Engine version update.
type UpdateEvent struct {
	MessageID  int64     `json:"message_id"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Channel    string    `json:"channel"`
	Preview    string    `json:"preview"`
	DetectedAt time.Time `json:"detected_at"`
}
