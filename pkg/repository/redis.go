package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kindred/pkg/model"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "kindred:snapshot:"
	snapshotIndexKey  = "kindred:snapshots"
)

// Redis stores snapshots as JSON values indexed by a sorted set of finish
// times.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithSnapshotTTL expires stored snapshots after ttl. Zero keeps them.
func WithSnapshotTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis connects to the server at url, e.g. redis://localhost:6379/0.
func NewRedis(ctx context.Context, url string, opts ...RedisOption) (*Redis, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse redis url")
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to ping redis", goerr.V("addr", redisOpts.Addr))
	}

	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return goerr.New("snapshot requires a session id")
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal snapshot", goerr.V("session", snap.SessionID))
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+snap.SessionID, raw, r.ttl)
	pipe.ZAdd(ctx, snapshotIndexKey, redis.Z{
		Score:  float64(snap.FinishedAt.UnixMilli()),
		Member: snap.SessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return goerr.Wrap(err, "failed to put snapshot", goerr.V("session", snap.SessionID))
	}
	return nil
}

func (r *Redis) GetSnapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerr.Wrap(ErrNotFound, "no snapshot in redis", goerr.V("session", sessionID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get snapshot", goerr.V("session", sessionID))
	}

	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal snapshot", goerr.V("session", sessionID))
	}
	snap.TreeJSON = string(snap.Tree)
	return &snap, nil
}

func (r *Redis) ListSnapshots(ctx context.Context, offset, limit int) ([]*model.Snapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, snapshotIndexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list snapshots")
	}

	snaps := make([]*model.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := r.GetSnapshot(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired value; drop the stale index entry
			_ = r.client.ZRem(ctx, snapshotIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
