package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisArchiveConfig struct {
	Addr     string
	Password string
	DB       int
	// Key prefix; the session id is appended.
	Key    string
	MaxLen int64
	TTL    time.Duration
}

// RedisArchive keeps the most recent messages of each session in a capped list.
type RedisArchive struct {
	client *redis.Client
	prefix string
	maxLen int64
	ttl    time.Duration
}

type archivedMessage struct {
	Message
	SessionID string `json:"session_id"`
}

func NewRedisArchive(ctx context.Context, cfg RedisArchiveConfig) (*RedisArchive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisArchive(client, cfg), nil
}

func newRedisArchive(client *redis.Client, cfg RedisArchiveConfig) *RedisArchive {
	prefix := strings.TrimSpace(cfg.Key)
	if prefix == "" {
		prefix = "voicechat:conversation"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 1000
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisArchive{client: client, prefix: prefix, maxLen: maxLen, ttl: ttl}
}

func (a *RedisArchive) key(sessionID string) string {
	return a.prefix + ":" + sessionID
}

func (a *RedisArchive) ArchiveMessage(ctx context.Context, sessionID string, msg Message) error {
	payload, err := json.Marshal(archivedMessage{Message: msg, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("marshal archived message: %w", err)
	}
	key := a.key(sessionID)
	_, err = a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, -a.maxLen, -1)
		pipe.Expire(ctx, key, a.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

func (a *RedisArchive) Close() error {
	return a.client.Close()
}
