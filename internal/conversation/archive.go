package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/voicechat/internal/policy"
)

// Archive receives a copy of every message for offline review. It is write
// only: nothing is ever loaded back into a Store.
type Archive interface {
	ArchiveMessage(ctx context.Context, sessionID string, msg Message) error
	Close() error
}

const (
	ArchiveNone     = "none"
	ArchivePostgres = "postgres"
	ArchiveRedis    = "redis"
)

var ErrUnknownArchive = errors.New("unknown archive kind")

// ArchiveConfig selects and configures an Archive backend.
type ArchiveConfig struct {
	Kind string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
	RedisMaxLen   int64
	RedisTTL      time.Duration

	// RedactPII masks e-mails, phone and card numbers before writing.
	RedactPII bool
}

// NewArchive creates the configured backend. An empty kind means none.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (Archive, error) {
	var (
		archive Archive
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", ArchiveNone:
		return NoopArchive{}, nil
	case ArchivePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("postgres archive requires a database url")
		}
		archive, err = NewPostgresArchive(ctx, cfg.DatabaseURL)
	case ArchiveRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, errors.New("redis archive requires an address")
		}
		archive, err = NewRedisArchive(ctx, RedisArchiveConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
			MaxLen:   cfg.RedisMaxLen,
			TTL:      cfg.RedisTTL,
		})
	default:
		return nil, fmt.Errorf("%w: %q (expected none|postgres|redis)", ErrUnknownArchive, cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RedactPII {
		archive = Redacting(archive)
	}
	return archive, nil
}

// NoopArchive drops everything.
type NoopArchive struct{}

func (NoopArchive) ArchiveMessage(context.Context, string, Message) error { return nil }
func (NoopArchive) Close() error                                          { return nil }

type redactingArchive struct {
	next Archive
}

// Redacting wraps next so message content is PII-redacted before it is written.
func Redacting(next Archive) Archive {
	return &redactingArchive{next: next}
}

func (a *redactingArchive) ArchiveMessage(ctx context.Context, sessionID string, msg Message) error {
	msg.Content, _ = policy.RedactPII(msg.Content)
	return a.next.ArchiveMessage(ctx, sessionID, msg)
}

func (a *redactingArchive) Close() error { return a.next.Close() }
