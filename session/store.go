package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rpsserver/game"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultTTL = 24 * time.Hour

var ErrNotFound = errors.New("session not found")

// Store はセッショントークンをキーにゲーム状態を Redis に保存します。
// 保存のたびに有効期限を延長します。
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, logger: logger}
}

func (s *Store) key(token string) string { return "session:" + token }

// Create は新しいセッションIDを発行し、初期状態を保存します。
func (s *Store) Create(ctx context.Context) (string, *game.State, error) {
	state, err := game.NewState(game.DefaultRounds)
	if err != nil {
		return "", nil, err
	}
	token := uuid.New().String()
	if err := s.Save(ctx, token, state); err != nil {
		return "", nil, err
	}
	s.logger.Debug("Session created", zap.String("sessionID", token))
	return token, state, nil
}

// Load はセッション状態を読み込みます。存在しない・期限切れの場合は ErrNotFound
func (s *Store) Load(ctx context.Context, token string) (*game.State, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var state game.State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Error("Failed to decode session info", zap.String("sessionID", token), zap.Error(err))
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Save は状態を書き戻します。同じセッションへの同時更新は後勝ち
func (s *Store) Save(ctx context.Context, token string, state *game.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(token), raw, s.ttl).Err(); err != nil {
		s.logger.Error("Error storing session info in Redis", zap.String("sessionID", token), zap.Error(err))
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Touch は状態を書き換えずに有効期限だけを延長します。
func (s *Store) Touch(ctx context.Context, token string) error {
	ok, err := s.rdb.Expire(ctx, s.key(token), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Ping は Redis への疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
