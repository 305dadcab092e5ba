package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// deleteRecordScript removes a session key and its subject-index member in
// one atomic step, so a concurrent reader sees either both or neither.
const deleteRecordScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteRecordLua = redis.NewScript(deleteRecordScript)

// RedisStore persists session records in Redis for multi-instance
// deployments. Each record lives under prefix:token with a native TTL, and a
// per-subject set indexes tokens for ListBySubject. Redis expiry reclaims
// dead records physically; stale index members are pruned on read.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. prefix namespaces all keys.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":s:" + token
}

func (s *RedisStore) subjectKey(subjectID string) string {
	return s.prefix + ":u:" + subjectID
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, record *Record, ttl time.Duration) error {
	payload, err := Encode(record)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.Token), payload, ttl)
		pipe.SAdd(ctx, s.subjectKey(record.SubjectID), record.Token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, token string) (*Record, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	record.Token = token

	return record, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	// The subject is needed for index maintenance; an absent record means
	// Redis already reclaimed both the key and, eventually, the member.
	record, err := s.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if errors.Is(err, ErrCorruptRecord) {
			// An unreadable payload still has to go. Its subject is
			// unrecoverable, so the index member is left for the
			// ListBySubject pruning pass.
			if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil
		}
		return err
	}

	_, err = deleteRecordLua.Run(
		ctx,
		s.client,
		[]string{s.key(token), s.subjectKey(record.SubjectID)},
		token,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// ListBySubject implements Store.
func (s *RedisStore) ListBySubject(ctx context.Context, subjectID string) ([]*Record, error) {
	tokens, err := s.client.SMembers(ctx, s.subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.Get(ctx, s.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		records []*Record
		stale   []interface{}
	)
	for i, cmd := range cmds {
		payload, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, tokens[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}

		record, decErr := Decode(payload)
		if decErr != nil {
			return nil, decErr
		}
		record.Token = tokens[i]
		records = append(records, record)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.subjectKey(subjectID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return records, nil
}

// RefreshTTL implements Store.
func (s *RedisStore) RefreshTTL(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, s.key(token), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping returns a point-in-time availability check and its latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
