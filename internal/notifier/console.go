package notifier

import (
	"context"
	"fmt"
	"io"
	"os"

	"uewatch/internal/domain"
)

// Console renders each update as a human-readable banner.
type Console struct {
	out io.Writer
}

// NewConsole writes to out, or stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Notify(ctx context.Context, ev domain.UpdateEvent) error {
	_, err := fmt.Fprintf(c.out, `
╔════════════════════════════════════════╗
║   UE PLUGIN UPDATE DETECTED!           ║
╚════════════════════════════════════════╝

Version: %s
Date: %s
Channel: %s
Message ID: %d

Message Preview:
%s

`,
		ev.Version,
		ev.Timestamp.Format("2006-01-02 15:04:05"),
		ev.Channel,
		ev.MessageID,
		ev.Preview,
	)
	return err
}
