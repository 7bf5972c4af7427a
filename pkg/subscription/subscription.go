// Package subscription issues short-lived tokens that authorize listening to
// the event stream of one execution.
package subscription

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"
)

const tokenBytes = 32

func tokenKey(token string) string { return "sseToken:" + token }
func executionKey(executionID string) string { return "execToken:" + executionID }

// Token is an issued subscription token.
type Token struct {
	Token       string    `json:"token"`
	ExecutionID string    `json:"executionId"`
	UserID      string    `json:"userId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Verification is the outcome of checking a token.
type Verification struct {
	Valid  bool
	UserID string
}

type Service struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewService(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "subscription"),
		now:    time.Now,
	}
}

// Generate issues a token bound to executionID and userID.
func (s *Service) Generate(ctx context.Context, executionID, userID string) (*Token, error) {
	raw := make([]byte, tokenBytes)

	_, err := rand.Read(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &Token{
		Token:       hex.EncodeToString(raw),
		ExecutionID: executionID,
		UserID:      userID,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(token.Token), payload, s.ttl)
		pipe.SAdd(ctx, executionKey(executionID), token.Token)
		pipe.Expire(ctx, executionKey(executionID), s.ttl)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store token for execution %s: %w", executionID, err)
	}

	return token, nil
}

// Verify checks that token exists, belongs to executionID and has not expired.
func (s *Service) Verify(ctx context.Context, executionID, token string) (Verification, error) {
	if token == "" {
		return Verification{}, nil
	}

	payload, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Verification{}, nil
		}

		return Verification{}, fmt.Errorf("failed to load token: %w", err)
	}

	var stored Token

	err = json.Unmarshal(payload, &stored)
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed subscription token", "execution_id", executionID, "error", err)

		return Verification{}, nil
	}

	if stored.ExecutionID != executionID || !s.now().Before(stored.ExpiresAt) {
		return Verification{}, nil
	}

	return Verification{Valid: true, UserID: stored.UserID}, nil
}

// Invalidate revokes every token issued for executionID.
func (s *Service) Invalidate(ctx context.Context, executionID string) error {
	tokens, err := s.client.SMembers(ctx, executionKey(executionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list tokens of execution %s: %w", executionID, err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, tokenKey(token))
	}

	keys = append(keys, executionKey(executionID))

	err = s.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("failed to delete tokens of execution %s: %w", executionID, err)
	}

	s.logger.DebugContext(ctx, "Invalidated subscription tokens", "execution_id", executionID, "count", len(tokens))

	return nil
}
