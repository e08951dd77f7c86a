package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"xspread/internal/application/port"
	"xspread/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// Repo 把最新 ranking 写到一个带 TTL 的 key，并 PUBLISH 给订阅方。
// feed 全断时 key 会随 TTL 过期，不会一直挂着旧数据。
type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyRanking string // prefix + ":ranking"
	channel    string // prefix + ":ranking:pub"
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "xspread"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        ttl,
		keyRanking: prefix + ":ranking",
		channel:    prefix + ":ranking:pub",
	}
}

func (r *Repo) Key() string     { return r.keyRanking }
func (r *Repo) Channel() string { return r.channel }

func (r *Repo) PublishRanking(ctx context.Context, rk model.Ranking) error {
	b, err := json.Marshal(rk)
	if err != nil {
		return fmt.Errorf("marshal ranking: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, r.keyRanking, b, r.ttl)
	pipe.Publish(ctx, r.channel, b)
	_, err = pipe.Exec(ctx)
	return err
}

// Close is a no-op; the client is owned by whoever created it.
func (r *Repo) Close() error { return nil }

var _ port.Publisher = (*Repo)(nil)
