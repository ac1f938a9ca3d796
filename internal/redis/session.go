package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hooprank/internal/domain"
)

// SessionStore keeps authenticated user records keyed by user ID
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store on an existing Redis connection
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

// sessionKey returns the Redis key for a user's session record
func (s *SessionStore) sessionKey(userID string) string {
	return fmt.Sprintf("hooprank:session:%s", userID)
}

// Save stores an authenticated user record with the session TTL
func (s *SessionStore) Save(ctx context.Context, user domain.AuthUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	key := s.sessionKey(user.ID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Get retrieves an authenticated user record
func (s *SessionStore) Get(ctx context.Context, userID string) (*domain.AuthUser, error) {
	key := s.sessionKey(userID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var user domain.AuthUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &user, nil
}

// Delete removes a user's session record
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	key := s.sessionKey(userID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
