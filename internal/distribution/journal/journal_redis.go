package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"srwa/internal/distribution/models"
	"srwa/pkg/platform/sentinel"
)

const (
	entryKeyPrefix  = "srwa:distribution:"
	maxWatchRetries = 3
)

// Redis shares the journal across instances. Every state change runs under
// WATCH so two instances racing for one key cannot both hold the lease, and a
// write from a lease that was taken over is refused. Entries carry their own
// lease expiry and never expire in Redis, so a Pending signature survives a
// lapsed lease.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (j *Redis) Begin(ctx context.Context, key string, ttl time.Duration) (*models.Entry, *models.Lease, error) {
	var prior *models.Entry
	var lease *models.Lease
	err := j.transact(ctx, key, func(current *models.Entry) (*models.Entry, error) {
		var next *models.Entry
		prior = current
		next, lease = decide(key, current, j.now(), ttl)
		return next, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("begin distribution %s: %w", key, err)
	}
	return prior, lease, nil
}

func (j *Redis) Renew(ctx context.Context, lease *models.Lease, ttl time.Duration) error {
	return j.heldWrite(ctx, "renew", lease, func(current *models.Entry) *models.Entry {
		return renewed(current, j.now(), ttl)
	})
}

func (j *Redis) MarkPending(ctx context.Context, lease *models.Lease, p models.Pending) error {
	return j.heldWrite(ctx, "mark pending", lease, func(*models.Entry) *models.Entry {
		return pendingEntry(lease, p)
	})
}

func (j *Redis) Complete(ctx context.Context, lease *models.Lease, receipt *models.Receipt) error {
	return j.heldWrite(ctx, "complete", lease, func(*models.Entry) *models.Entry {
		return completedEntry(lease, receipt)
	})
}

// Release drops the lease if it is still held; other states are left alone.
func (j *Redis) Release(ctx context.Context, lease *models.Lease) error {
	rkey := entryKeyPrefix + lease.Key
	err := j.client.Watch(ctx, func(tx *redis.Tx) error {
		e, err := read(ctx, tx, rkey)
		if err != nil || !e.HeldBy(lease) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			return nil
		})
		return err
	}, rkey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("release distribution %s: %w", lease.Key, err)
	}
	return nil
}

func (j *Redis) Get(ctx context.Context, key string) (*models.Entry, error) {
	e, err := read(ctx, j.client, entryKeyPrefix+key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("journal entry %s: %w", key, sentinel.ErrNotFound)
	}
	return e, nil
}

// heldWrite replaces the entry only while lease still holds it.
func (j *Redis) heldWrite(ctx context.Context, op string, lease *models.Lease, next func(current *models.Entry) *models.Entry) error {
	err := j.transact(ctx, lease.Key, func(current *models.Entry) (*models.Entry, error) {
		if !current.HeldBy(lease) {
			return nil, fmt.Errorf("lease on %s lost: %w", lease.Key, sentinel.ErrConflict)
		}
		return next(current), nil
	})
	if err != nil {
		return fmt.Errorf("%s distribution %s: %w", op, lease.Key, err)
	}
	return nil
}

// transact reads the entry under WATCH and writes what fn returns; a nil
// entry leaves the key untouched. A key that keeps changing underneath is a
// conflict.
func (j *Redis) transact(ctx context.Context, key string, fn func(current *models.Entry) (*models.Entry, error)) error {
	rkey := entryKeyPrefix + key
	for range maxWatchRetries {
		err := j.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := read(ctx, tx, rkey)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil || next == nil {
				return err
			}
			payload, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode journal entry: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, rkey, payload, 0)
				return nil
			})
			return err
		}, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return sentinel.ErrConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// read returns nil without error when the key is absent.
func read(ctx context.Context, c getter, rkey string) (*models.Entry, error) {
	payload, err := c.Get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e models.Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return &e, nil
}
