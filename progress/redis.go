package progress

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSink publishes progress events to a Redis stream so another process
// can render them.
type RedisSink struct {
	client    *redis.Client
	ctx       context.Context
	stream    string
	job       string
	maxLength int64
	log       zerolog.Logger
}

// NewRedisSink creates a sink publishing to stream. Events carry job as their job id.
func NewRedisSink(ctx context.Context, addr string, db int, stream, job string, log zerolog.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &RedisSink{
		client:    client,
		ctx:       ctx,
		stream:    stream,
		job:       job,
		maxLength: 10000,
		log:       log,
	}
}

func (s *RedisSink) Ping() error {
	return s.client.Ping(s.ctx).Err()
}

func (s *RedisSink) publish(values map[string]interface{}) {
	values["job"] = s.job
	values["time"] = time.Now().Format(time.RFC3339)
	err := s.client.XAdd(s.ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLength,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		// progress is advisory, the export goes on
		s.log.Warn().Err(err).Str("stream", s.stream).Msg("progress publish failed")
	}
}

func (s *RedisSink) Progress(fraction float64, desc string) {
	s.publish(map[string]interface{}{
		"type":        "progress",
		"fraction":    strconv.FormatFloat(fraction, 'f', 4, 64),
		"description": desc,
	})
}

func (s *RedisSink) Status(msg string) {
	s.publish(map[string]interface{}{
		"type":   "status",
		"status": msg,
	})
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
