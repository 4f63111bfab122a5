package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"folio/internal/application/port"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender 把通知事件写入 Kafka，消息 key 为通知 id，同一 id 落在同一分区
type KafkaSender struct {
	w     messageWriter
	topic string
	now   func() time.Time
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka sender created")
	return &KafkaSender{w: w, topic: topic, now: time.Now}
}

func (k *KafkaSender) Name() string { return "kafka" }

func (k *KafkaSender) Send(ctx context.Context, n port.Notification) error {
	msg, err := encode(port.NotificationEvent{Kind: port.EventScheduled, Notification: n})
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", n.ID, err)
	}
	return nil
}

func (k *KafkaSender) Retract(ctx context.Context, ids []string) error {
	ts := k.now().UnixMilli()
	msgs := make([]kafka.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := encode(port.NotificationEvent{
			Kind:         port.EventCancelled,
			Notification: port.Notification{ID: id, Ts: ts},
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write cancel: %w", err)
	}
	return nil
}

func (k *KafkaSender) Close() error { return k.w.Close() }

func encode(ev port.NotificationEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal notification %s: %w", ev.ID, err)
	}
	return kafka.Message{Key: []byte(ev.ID), Value: b}, nil
}

var (
	_ port.Sender    = (*KafkaSender)(nil)
	_ port.Retractor = (*KafkaSender)(nil)
)
