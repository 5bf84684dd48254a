package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlRoom          = 24 * time.Hour
	maxUpdateRetries = 5
)

// RedisStore keeps rooms in Redis so several server processes can share them.
type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// OpenRedisStore connects to redisURL (redis:// or rediss://) and checks the connection.
func OpenRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis room store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb), nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisStore) keyRoom(code string) string    { return "room:" + strings.TrimSpace(code) }
func (s *RedisStore) keyMoves(code string) string   { return s.keyRoom(code) + ":moves" }
func (s *RedisStore) keyConnIdx(conn string) string { return "room:index:conn:" + strings.TrimSpace(conn) }
func (s *RedisStore) keyLive() string               { return "room:live" }

func (s *RedisStore) Reserve(ctx context.Context, r *Room) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	ok, err := s.rdb.SetNX(ctx, s.keyRoom(r.Code), raw, ttlRoom).Result()
	if err != nil || !ok {
		return false, err
	}
	if err := s.rdb.SAdd(ctx, s.keyLive(), r.Code).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Load(ctx context.Context, code string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error) {
	key := s.keyRoom(code)
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var out *Room
		// WATCH the room so concurrent joins cannot both see a free seat
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			var r Room
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			if err := fn(&r); err != nil {
				return err
			}
			next, err := json.Marshal(&r)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, ttlRoom)
				return nil
			})
			if err == nil {
				out = &r
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update room %s: too much contention", code)
}

func (s *RedisStore) AppendMove(ctx context.Context, code string, mv Move) error {
	raw, err := json.Marshal(mv)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.keyMoves(code), raw)
	pipe.Expire(ctx, s.keyMoves(code), ttlRoom)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, code string) (*Room, error) {
	key, movesKey := s.keyRoom(code), s.keyMoves(code)
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var out *Room
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return err
			}
			var r Room
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			rawMoves, err := tx.LRange(ctx, movesKey, 0, -1).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			for _, m := range rawMoves {
				var mv Move
				if json.Unmarshal([]byte(m), &mv) == nil {
					r.Moves = append(r.Moves, mv)
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, movesKey)
				pipe.SRem(ctx, s.keyLive(), code)
				return nil
			})
			if err == nil {
				out = &r
			}
			return err
		}, key, movesKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("delete room %s: too much contention", code)
}

func (s *RedisStore) AddMember(ctx context.Context, connID, code string) error {
	if strings.TrimSpace(connID) == "" {
		return nil
	}
	if err := s.rdb.SAdd(ctx, s.keyConnIdx(connID), code).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyConnIdx(connID), ttlRoom).Err()
}

func (s *RedisStore) RemoveMember(ctx context.Context, connID, code string) error {
	return s.rdb.SRem(ctx, s.keyConnIdx(connID), code).Err()
}

func (s *RedisStore) Memberships(ctx context.Context, connID string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyConnIdx(connID)).Result()
}

func (s *RedisStore) ClearMemberships(ctx context.Context, connID string) error {
	return s.rdb.Del(ctx, s.keyConnIdx(connID)).Err()
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.keyLive()).Result()
	return int(n), err
}
