package seen

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the seen set in a Redis set so a restarted watcher does not
// re-notify messages it already handled. Ownership stays with one process;
// the key is only shared across restarts, not across instances.
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(addr, channel string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{
		rdb: rdb,
		key: fmt.Sprintf("uewatch:seen:%s", channel),
	}, nil
}

func (r *Redis) Contains(ctx context.Context, id int64) (bool, error) {
	return r.rdb.SIsMember(ctx, r.key, strconv.FormatInt(id, 10)).Result()
}

func (r *Redis) Add(ctx context.Context, id int64) error {
	return r.rdb.SAdd(ctx, r.key, strconv.FormatInt(id, 10)).Err()
}

func (r *Redis) Size(ctx context.Context) (int64, error) {
	return r.rdb.SCard(ctx, r.key).Result()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
