package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// Repo 基于 Redis 的报价缓存和通知通道：
// 最新报价存在一个 hash 中（field 为代码），通知写入 stream 并同时 PUBLISH
type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	notifyStream string
	notifyChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, notifyStream, notifyChan string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "folio"
	}
	if strings.TrimSpace(notifyStream) == "" {
		notifyStream = prefix + ":notifications"
	}
	if strings.TrimSpace(notifyChan) == "" {
		notifyChan = prefix + ":notifications:pub"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		notifyStream: notifyStream,
		notifyChan:   notifyChan,
	}
}

// Put 保存最后一次成功的报价
func (r *Repo) Put(ctx context.Context, q *model.Quote) error {
	if q == nil || q.Price <= 0 {
		return nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, q.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) Get(ctx context.Context, symbol string) (*model.Quote, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, model.NormalizeSymbol(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q model.Quote
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return nil, fmt.Errorf("decode cached quote %s: %w", symbol, err)
	}
	return &q, nil
}

func (r *Repo) Name() string { return "redis" }

func (r *Repo) Send(ctx context.Context, n port.Notification) error {
	return r.publish(ctx, port.NotificationEvent{Kind: port.EventScheduled, Notification: n})
}

func (r *Repo) Retract(ctx context.Context, ids []string) error {
	ts := time.Now().UnixMilli()
	for _, id := range ids {
		ev := port.NotificationEvent{Kind: port.EventCancelled, Notification: port.Notification{ID: id, Ts: ts}}
		if err := r.publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) publish(ctx context.Context, ev port.NotificationEvent) error {
	// 1) Stream: XADD <stream> * kind id title body ts_ms
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.notifyStream,
		Values: map[string]any{
			"kind":  ev.Kind,
			"id":    ev.ID,
			"title": ev.Title,
			"body":  ev.Body,
			"ts_ms": ev.Ts,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.notifyChan, string(b)).Err()
}

func (r *Repo) Close() error { return r.rdb.Close() }

var (
	_ port.QuoteCache = (*Repo)(nil)
	_ port.Sender     = (*Repo)(nil)
	_ port.Retractor  = (*Repo)(nil)
)
