package seen

import "context"

// Store is the monitor's dedup memory: the set of message ids already
// processed. The monitor's event loop is the only writer; Size may be read
// concurrently by the status server.
type Store interface {
	Contains(ctx context.Context, id int64) (bool, error)
	Add(ctx context.Context, id int64) error
	Size(ctx context.Context) (int64, error)
}
