package runlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen caps the run stream (approximate trimming).
const DefaultStreamMaxLen = 10000

// RedisSink appends runs to a Redis stream so other services can follow them.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: DefaultStreamMaxLen}
}

// Report implements core.Sink.
func (s *RedisSink) Report(ctx context.Context, record core.RunRecord) error {
	if s.stream == "" {
		return fmt.Errorf("stream name is required")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":      record.ID,
			"stop_reason": string(record.Reason),
			"flags":       len(record.Flags),
			"record":      raw,
		},
	}
	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisSink) Close() error { return s.client.Close() }
