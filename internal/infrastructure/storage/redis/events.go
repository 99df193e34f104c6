package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"farb/internal/application/port"
)

// EventSink publishes position events to a Redis stream and pubsub
// channel, and caches the latest cycle report for external dashboards.
type EventSink struct {
	rdb         *redis.Client
	prefix      string
	eventStream string
	eventChan   string
	reportKey   string
	reportTTL   time.Duration
}

func NewEventSink(rdb *redis.Client, prefix string) *EventSink {
	return &EventSink{
		rdb:         rdb,
		prefix:      prefix,
		eventStream: prefix + ":positions",
		eventChan:   prefix + ":positions:pub",
		reportKey:   prefix + ":report:latest",
		reportTTL:   1 * time.Hour,
	}
}

func (s *EventSink) PublishPositionEvent(ctx context.Context, ev port.PositionEvent) error {
	// 1) Stream: XADD for replayable consumers
	_, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.eventStream,
		Values: map[string]any{
			"kind":        ev.Kind,
			"position_id": ev.PositionID,
			"coin":        ev.Coin,
			"price":       ev.Price,
			"quantity":    ev.Quantity,
			"pnl":         ev.PnL,
			"ts_ms":       ev.Ts,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: JSON for live listeners
	b, _ := json.Marshal(ev)
	return s.rdb.Publish(ctx, s.eventChan, string(b)).Err()
}

func (s *EventSink) CacheSnapshotReport(ctx context.Context, ts int64, payload string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, s.reportKey, "ts_ms", ts, "payload", payload)
	if s.reportTTL > 0 {
		pipe.Expire(ctx, s.reportKey, s.reportTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *EventSink) Close() error { return s.rdb.Close() }

var _ port.EventSink = (*EventSink)(nil)
