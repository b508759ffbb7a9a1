package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
)

const (
	sessionKeyPrefix = "chatsession:"
	userIndexPrefix  = "chatsessions:user:"
)

// redisStore implements Store on Redis with optimistic locking via WATCH.
// A per-user sorted set indexes sessions by last update for ListRecentByUser.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) Create(ctx context.Context, sess *chat.Session) error {
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	sess.Version = 1

	val, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	key := sessionKeyPrefix + sess.ID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, val, s.ttl)
		pipe.ZAdd(ctx, userIndexPrefix+sess.UserID, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: sess.ID,
		})
		pipe.Expire(ctx, userIndexPrefix+sess.UserID, s.ttl)
		return nil
	})
	return err
}

func (s *redisStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	key := sessionKeyPrefix + id
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess chat.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}

	// Refresh TTL on read.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sess, nil
}

func (s *redisStore) Update(ctx context.Context, sess *chat.Session) error {
	key := sessionKeyPrefix + sess.ID

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored chat.Session
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != sess.Version {
			return ErrVersionConflict
		}

		sess.Version++
		sess.UpdatedAt = time.Now().UTC()

		newVal, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			pipe.ZAdd(ctx, userIndexPrefix+sess.UserID, redis.Z{
				Score:  float64(sess.UpdatedAt.UnixMilli()),
				Member: sess.ID,
			})
			return nil
		})
		return err
	}, key)
}

func (s *redisStore) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*chat.Session, error) {
	if limit <= 0 {
		limit = 5
	}

	ids, err := s.client.ZRevRange(ctx, userIndexPrefix+userID, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*chat.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err == ErrNotFound {
			// Session expired out from under the index; drop the entry.
			_ = s.client.ZRem(ctx, userIndexPrefix+userID, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+id)
		pipe.ZRem(ctx, userIndexPrefix+sess.UserID, id)
		return nil
	})
	return err
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
