// Package session persists conversations in Redis keyed by session ID.
// Every save refreshes the TTL, so a session expires only after going
// quiet for the configured window.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"riskintel-assistant/internal/common/logger"
	"riskintel-assistant/internal/models"
)

const keyPrefix = "session:"

var ErrNotFound = errors.New("SESSION_NOT_FOUND")

type Store struct {
	client     *redis.Client
	ttl        time.Duration
	maxHistory int
	logger     logger.Logger
	now        func() time.Time
}

func NewStore(client *redis.Client, ttl time.Duration, maxHistory int, log logger.Logger) *Store {
	return &Store{
		client:     client,
		ttl:        ttl,
		maxHistory: maxHistory,
		logger: log.With(map[string]interface{}{
			"component": "session-store",
		}),
		now: time.Now,
	}
}

// GetOrCreate loads a session, creating a fresh one when the ID is empty
// or unknown. The returned session always has a usable ID.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	if id != "" {
		sess, err := s.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := s.now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("session created", map[string]interface{}{
		"sessionId": sess.ID,
	})
	return sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &sess, nil
}

// Save writes the session back and refreshes its TTL. Message and SQL
// history are trimmed to the configured cap before writing.
func (s *Store) Save(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = s.now()

	if s.maxHistory > 0 {
		if n := len(sess.Messages); n > s.maxHistory*2 {
			sess.Messages = sess.Messages[n-s.maxHistory*2:]
		}
		if n := len(sess.SQLHistory); n > s.maxHistory {
			sess.SQLHistory = sess.SQLHistory[n-s.maxHistory:]
		}
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+sess.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}
