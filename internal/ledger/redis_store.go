package ledger

import (
	"context"
	stderr "errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediacache/mediacache/pkg/errors"
	"github.com/mediacache/mediacache/pkg/retry"
)

// RedisConfig configures a Redis-backed ledger.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Timeout  time.Duration
}

// RedisStore keeps the ledger in one Redis hash. A companion string key
// records when the hash was last written, so an empty ledger is still
// distinguishable from one that was never persisted.
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	metaKey string
	retryer *retry.Retryer
}

// NewRedisStore connects lazily to Redis using config.
func NewRedisStore(config RedisConfig, retryer *retry.Retryer) *RedisStore {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return NewRedisStoreWithClient(client, config.Key, retryer)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, key string, retryer *retry.Retryer) *RedisStore {
	if retryer == nil {
		retryer = retry.New(retry.DefaultConfig())
	}
	return &RedisStore{
		client:  client,
		key:     key,
		metaKey: key + ":written_at",
		retryer: retryer,
	}
}

// Read loads every field of the ledger hash.
func (s *RedisStore) Read(ctx context.Context) (map[string]int64, bool, error) {
	var (
		raw   map[string]string
		found bool
	)
	err := s.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		exists, err := s.client.Exists(ctx, s.metaKey).Result()
		if err != nil {
			return s.classify(err, errors.ErrCodeLedgerRead, "check ledger marker")
		}
		if exists == 0 {
			found = false
			return nil
		}
		found = true
		raw, err = s.client.HGetAll(ctx, s.key).Result()
		if err != nil {
			return s.classify(err, errors.ErrCodeLedgerRead, "read ledger hash")
		}
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}

	views := make(map[string]int64, len(raw))
	for path, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, false, errors.Wrap(err, errors.ErrCodeLedgerCorrupt,
				fmt.Sprintf("ledger field %q holds non-integer %q", path, value)).WithComponent("ledger")
		}
		views[path] = n
	}
	return views, true, nil
}

// Write replaces the whole hash in a single MULTI/EXEC transaction.
func (s *RedisStore) Write(ctx context.Context, views map[string]int64) error {
	fields := make(map[string]interface{}, len(views))
	for path, n := range views {
		fields[path] = n
	}
	writtenAt := time.Now().UTC().Format(time.RFC3339)

	return s.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.key)
			if len(fields) > 0 {
				pipe.HSet(ctx, s.key, fields)
			}
			pipe.Set(ctx, s.metaKey, writtenAt, 0)
			return nil
		})
		if err != nil {
			return s.classify(err, errors.ErrCodeLedgerWrite, "replace ledger hash")
		}
		return nil
	})
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) classify(err error, code errors.ErrorCode, op string) error {
	var netErr net.Error
	if stderr.As(err, &netErr) || stderr.Is(err, redis.ErrClosed) {
		code = errors.ErrCodeConnectionFailed
	}
	return errors.Wrap(err, code, fmt.Sprintf("redis %s on %s", op, s.key)).
		WithComponent("ledger").
		WithOperation(op)
}
