package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type recorder struct{ types []string }

func (r *recorder) Publish(_ context.Context, eventType string, _ any) {
	r.types = append(r.types, eventType)
}

func TestKafkaPublisher_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	p.Publish(context.Background(), "scan_completed", map[string]int{"count_ranked": 4})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "scan_completed", string(w.msgs[0].Key))

	var ev struct {
		Type      string         `json:"type"`
		Timestamp time.Time      `json:"timestamp"`
		Data      map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "scan_completed", ev.Type)
	assert.Equal(t, 4, ev.Data["count_ranked"])
	assert.True(t, ev.Timestamp.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteErrorIsSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w)
	assert.NotPanics(t, func() { p.Publish(context.Background(), "trade_executed", nil) })
	assert.Len(t, w.msgs, 1)
}

func TestFanout_SkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout{a, nil, b}
	f.Publish(context.Background(), "portfolio_reset", nil)
	assert.Equal(t, []string{"portfolio_reset"}, a.types)
	assert.Equal(t, []string{"portfolio_reset"}, b.types)
}
