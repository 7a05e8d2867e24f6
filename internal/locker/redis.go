package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kondiv/shop/internal/reliability/circuitbreaker"
)

// Store is the subset of the Redis client a RedisLock needs
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
}

// RedisLock is a lock shared by every replica pointing at the same Redis.
// The key expires after ttl so a crashed holder cannot block others forever.
type RedisLock struct {
	store   Store
	key     string
	ttl     time.Duration
	poll    time.Duration
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewRedisLock creates a lock stored under key
func NewRedisLock(store Store, key string, ttl time.Duration, logger *slog.Logger) *RedisLock {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	l := &RedisLock{
		store:   store,
		key:     key,
		ttl:     ttl,
		poll:    25 * time.Millisecond,
		breaker: circuitbreaker.New(5, 1, 5*time.Second),
		logger:  logger,
	}
	l.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("lock backend circuit changed",
			slog.String("key", key),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return l
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (l *RedisLock) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	for {
		var ok bool
		err := l.breaker.Execute(func() error {
			var err error
			ok, err = l.store.SetNX(ctx, l.key, token, l.ttl)
			return err
		}, isCancellation)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}

		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// release runs on a fresh context so a cancelled request still frees the key.
func (l *RedisLock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := l.store.CompareAndDelete(ctx, l.key, token)
	if err != nil {
		l.logger.Error("failed to release lock",
			slog.String("key", l.key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !released {
		l.logger.Warn("lock expired before release", slog.String("key", l.key))
	}
}
