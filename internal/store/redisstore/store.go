package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound means the OAuth state expired, was never issued or has
// already been used.
var ErrStateNotFound = errors.New("oauth state not found")

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func revokedKey(jti string) string { return "auth:revoked:" + jti }

func oauthStateKey(state string) string { return "oauth:state:" + state }

// RevokeToken denylists a token id until the token would have expired anyway.
func (s *Store) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SaveOAuthState(ctx context.Context, state string, userID uint64, ttl time.Duration) error {
	return s.rdb.Set(ctx, oauthStateKey(state), strconv.FormatUint(userID, 10), ttl).Err()
}

// ConsumeOAuthState returns the user that started the flow and deletes the
// state so it cannot be replayed.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (uint64, error) {
	v, err := s.rdb.GetDel(ctx, oauthStateKey(state)).Result()
	if err == redis.Nil {
		return 0, ErrStateNotFound
	}
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt oauth state %q: %w", v, err)
	}
	return uid, nil
}
