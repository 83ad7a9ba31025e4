package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable wraps every Redis failure other than a missing key.
	ErrStoreUnavailable = errors.New("refresh token store unavailable")
	// ErrRefreshTokenNotFound is returned when no live record exists for a token id.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

const (
	refreshKeyPrefix      = "refresh:"
	refreshIndexKeyPrefix = "refresh-index:"
)

// The index only ever grows its expiry so it outlives its longest-lived member.
// PTTL is -1 for a key without expiry, which is always lower than a positive ttl.
const putRefreshTokenScript = `
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
local current = redis.call("PTTL", KEYS[2])
if current < ttl then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`

var putRefreshTokenLua = redis.NewScript(putRefreshTokenScript)

// StoreObserver receives the latency of every store round trip.
type StoreObserver interface {
	ObserveStoreOperation(operation string, duration time.Duration)
}

// RefreshTokenRepository keeps refresh token liveness in Redis. A token id is live
// exactly while its record key exists.
type RefreshTokenRepository struct {
	client   redis.UniversalClient
	prefix   string
	timeout  time.Duration
	logger   *zap.Logger
	observer StoreObserver
}

// NewRefreshTokenRepository constructs the Redis backed refresh token store.
func NewRefreshTokenRepository(client redis.UniversalClient, prefix string, timeout time.Duration, logger *zap.Logger) *RefreshTokenRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RefreshTokenRepository{client: client, prefix: prefix, timeout: timeout, logger: logger}
}

// WithObserver attaches a latency observer and returns the repository.
func (r *RefreshTokenRepository) WithObserver(observer StoreObserver) *RefreshTokenRepository {
	r.observer = observer
	return r
}

func (r *RefreshTokenRepository) recordKey(tokenID string) string {
	return r.prefix + refreshKeyPrefix + tokenID
}

func (r *RefreshTokenRepository) indexKey(subject string) string {
	return r.prefix + refreshIndexKeyPrefix + subject
}

func (r *RefreshTokenRepository) begin(ctx context.Context, operation string) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	start := time.Now()
	return ctx, func() {
		cancel()
		if r.observer != nil {
			r.observer.ObserveStoreOperation(operation, time.Since(start))
		}
	}
}

func unavailable(operation string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, operation, err)
}

// Put records tokenID as live for subject and indexes it under the subject.
func (r *RefreshTokenRepository) Put(ctx context.Context, tokenID, subject string, ttl time.Duration) error {
	if tokenID == "" || subject == "" {
		return errors.New("put refresh token: token id and subject are required")
	}
	ttlMillis := ttl.Milliseconds()
	if ttlMillis <= 0 {
		return fmt.Errorf("put refresh token: ttl must be at least 1ms, got %s", ttl)
	}

	ctx, done := r.begin(ctx, "put")
	defer done()

	keys := []string{r.recordKey(tokenID), r.indexKey(subject)}
	if err := putRefreshTokenLua.Run(ctx, r.client, keys, subject, ttlMillis, tokenID).Err(); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// LookupOwner returns the subject a live token id belongs to.
func (r *RefreshTokenRepository) LookupOwner(ctx context.Context, tokenID string) (string, error) {
	ctx, done := r.begin(ctx, "lookup")
	defer done()

	owner, err := r.client.Get(ctx, r.recordKey(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrRefreshTokenNotFound
		}
		return "", unavailable("lookup", err)
	}
	return owner, nil
}

// Delete removes a record and its index entry. It reports whether the record still
// existed, so deleting twice is harmless.
func (r *RefreshTokenRepository) Delete(ctx context.Context, tokenID, subject string) (bool, error) {
	ctx, done := r.begin(ctx, "delete")
	defer done()

	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.recordKey(tokenID))
		pipe.SRem(ctx, r.indexKey(subject), tokenID)
		return nil
	})
	if err != nil {
		return false, unavailable("delete", err)
	}
	return del.Val() > 0, nil
}

// DeleteAllForSubject drops every indexed record of subject. Only the swept ids
// leave the index, so a token stored concurrently stays reachable by a later call.
func (r *RefreshTokenRepository) DeleteAllForSubject(ctx context.Context, subject string) (int, error) {
	ctx, done := r.begin(ctx, "delete_all")
	defer done()

	indexKey := r.indexKey(subject)
	tokenIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, unavailable("delete_all", err)
	}

	if len(tokenIDs) == 0 {
		return 0, nil
	}

	dels := make([]*redis.IntCmd, 0, len(tokenIDs))
	members := make([]interface{}, 0, len(tokenIDs))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tokenID := range tokenIDs {
			dels = append(dels, pipe.Del(ctx, r.recordKey(tokenID)))
			members = append(members, tokenID)
		}
		pipe.SRem(ctx, indexKey, members...)
		return nil
	})
	if err != nil {
		return 0, unavailable("delete_all", err)
	}

	removed := 0
	for _, cmd := range dels {
		removed += int(cmd.Val())
	}
	r.logger.Debug("refresh tokens deleted for subject",
		zap.String("subject", subject),
		zap.Int("indexed", len(tokenIDs)),
		zap.Int("removed", removed),
	)
	return removed, nil
}

// ActiveTokenIDs lists the subject's token ids whose record still exists. Index
// members whose record expired are pruned on the way.
func (r *RefreshTokenRepository) ActiveTokenIDs(ctx context.Context, subject string) ([]string, error) {
	ctx, done := r.begin(ctx, "active")
	defer done()

	indexKey := r.indexKey(subject)
	tokenIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable("active", err)
	}
	if len(tokenIDs) == 0 {
		return []string{}, nil
	}

	exists := make([]*redis.IntCmd, len(tokenIDs))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, tokenID := range tokenIDs {
			exists[i] = pipe.Exists(ctx, r.recordKey(tokenID))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("active", err)
	}

	live := make([]string, 0, len(tokenIDs))
	stale := make([]interface{}, 0)
	for i, cmd := range exists {
		if cmd.Val() > 0 {
			live = append(live, tokenIDs[i])
		} else {
			stale = append(stale, tokenIDs[i])
		}
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			r.logger.Warn("prune refresh index failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	return live, nil
}
