package notifier

import (
	"context"

	"uewatch/internal/domain"
)

// Notifier consumes UpdateEvents. Sinks are invoked in order by the
// monitor; a failing sink is logged and never blocks the others.
type Notifier interface {
	Notify(ctx context.Context, ev domain.UpdateEvent) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, ev domain.UpdateEvent) error

func (f Func) Notify(ctx context.Context, ev domain.UpdateEvent) error {
	return f(ctx, ev)
}
