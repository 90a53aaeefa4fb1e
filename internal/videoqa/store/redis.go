package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/videoqa/pkg/utils/json"
)

// RedisTranscriptStore keeps transcripts as JSON strings under
// {prefix}transcript:{video id}.
type RedisTranscriptStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisTranscriptStore creates a transcript store. A zero ttl keeps
// entries until redis evicts them.
func NewRedisTranscriptStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisTranscriptStore {
	return &RedisTranscriptStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisTranscriptStore) key(videoID string) string {
	return s.prefix + "transcript:" + videoID
}

// Get returns (nil, nil) on a miss.
func (s *RedisTranscriptStore) Get(ctx context.Context, videoID string) (*TranscriptRecord, error) {
	raw, err := s.client.Get(ctx, s.key(videoID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var rec TranscriptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	if rec.Text == "" {
		return nil, nil
	}
	return &rec, nil
}

// Put stores rec with the configured ttl.
func (s *RedisTranscriptStore) Put(ctx context.Context, rec *TranscriptRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.VideoID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
