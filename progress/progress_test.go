package progress

import (
	"bytes"
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleSinkThrottles(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(zerolog.New(&buf))
	sink.Step = 0.1

	sink.Progress(0, "start")
	sink.Progress(0.05, "skipped")
	sink.Progress(0.1, "tenth")
	sink.Progress(1, "done")
	sink.Status("exported 3 records")

	out := buf.String()
	assert.Contains(t, out, `"message":"start"`)
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, `"progress":"10.0%"`)
	assert.Contains(t, out, `"progress":"100.0%"`)
	assert.Contains(t, out, "exported 3 records")
}

func TestRecorderAndMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b}
	m.Progress(0.5, "half")
	m.Status("ok")

	want := []Event{{Fraction: 0.5, Description: "half"}, {Fraction: 1, Status: "ok"}}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0.0%", percent(-1))
	assert.Equal(t, "33.3%", percent(1.0/3))
	assert.Equal(t, "100.0%", percent(2))
}

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	sink := NewRedisSink(ctx, "localhost:6379", 0, "tourlens_test_progress", "job-1", zerolog.Nop())
	defer sink.Close()
	if err := sink.Ping(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	client.Del(ctx, "tourlens_test_progress")

	sink.Progress(0.25, "list pages")
	sink.Status("exported 1 records")

	messages, err := client.XRange(ctx, "tourlens_test_progress", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "progress", messages[0].Values["type"])
	assert.Equal(t, "0.2500", messages[0].Values["fraction"])
	assert.Equal(t, "job-1", messages[0].Values["job"])
	assert.Equal(t, "exported 1 records", messages[1].Values["status"])

	client.Del(ctx, "tourlens_test_progress")
}
