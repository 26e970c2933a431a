package diag

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink receives every surfaced error.
type Sink interface {
	Report(err error)
}

// LogSink writes reports to a logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(err error) {
	s.logger.Warn().Err(err).Str("kind", Kind(err)).Msg("Diagnostic reported")
}

// Record is the JSON form stored in Redis.
type Record struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

const (
	DiagnosticsKey     = "ble-ota:diagnostics"
	DiagnosticsChannel = "ble-ota"
)

// RedisSink keeps the most recent reports in a capped Redis list and
// publishes a notification for each.
type RedisSink struct {
	redis   *redis.Client
	logger  zerolog.Logger
	ctx     context.Context
	maxLen  int64
	timeout time.Duration
	now     func() time.Time
}

func NewRedisSink(ctx context.Context, client *redis.Client, logger zerolog.Logger, maxLen int64) *RedisSink {
	return &RedisSink{
		redis:   client,
		logger:  logger,
		ctx:     ctx,
		maxLen:  maxLen,
		timeout: 500 * time.Millisecond,
		now:     time.Now,
	}
}

func (s *RedisSink) Report(err error) {
	data, jerr := json.Marshal(Record{
		Kind:    Kind(err),
		Message: err.Error(),
		Time:    s.now().Unix(),
	})
	if jerr != nil {
		s.logger.Warn().Err(jerr).Msg("Failed to encode diagnostic")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, DiagnosticsKey, data)
	pipe.LTrim(ctx, DiagnosticsKey, 0, s.maxLen-1)
	pipe.Publish(ctx, DiagnosticsChannel, "diagnostics")
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store diagnostic in Redis")
	}
}

// Multi fans a report out to several sinks.
type Multi []Sink

func (m Multi) Report(err error) {
	for _, s := range m {
		s.Report(err)
	}
}

// Discard drops every report.
type Discard struct{}

func (Discard) Report(error) {}
