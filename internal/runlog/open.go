package runlog

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sinks is the set of run-log backends built from configuration.
type Sinks struct {
	Multi    Multi
	Postgres *PostgresSink
	Index    *Index
}

// Open builds every backend enabled in cfg. A backend that cannot be reached
// is skipped with a warning so the investigation itself never depends on it.
func Open(ctx context.Context, cfg config.RunLogConfig, logger *zap.Logger) (*Sinks, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sinks{}

	if cfg.File != "" {
		fs, err := NewFileSink(cfg.File)
		if err != nil {
			return nil, err
		}
		s.Multi = append(s.Multi, fs)
	}
	if cfg.Postgres.URL != "" {
		pg, err := OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			logger.Warn("postgres run log disabled", zap.Error(err))
		} else {
			s.Postgres = pg
			s.Multi = append(s.Multi, pg)
		}
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis run log disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = client.Close()
		} else {
			s.Multi = append(s.Multi, NewRedisSink(client, cfg.Redis.Stream))
		}
	}
	if cfg.Index.Enabled {
		idx, err := NewIndex(WithMaxRuns(cfg.Index.MaxRuns))
		if err != nil {
			return nil, errors.Join(err, s.Multi.Close())
		}
		s.Index = idx
		s.Multi = append(s.Multi, idx)
	}
	return s, nil
}

// Close releases every backend.
func (s *Sinks) Close() error {
	if s == nil {
		return nil
	}
	return s.Multi.Close()
}
