package port

import "context"

// Notifier 通知端口：按 id 安排和取消通知。取消未知 id 是空操作
type Notifier interface {
	Schedule(ctx context.Context, id, title, body string) error
	Cancel(ctx context.Context, ids []string) error
}

// Sender 把一条已到期的通知投递出去（控制台、Redis、Kafka）
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notification 投递给 Sender 的通知内容
type Notification struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Ts    int64  `json:"ts_ms"`
}

// Retractor 可选接口：Sender 支持撤回已投递的通知时实现
type Retractor interface {
	Retract(ctx context.Context, ids []string) error
}

const (
	EventScheduled = "scheduled"
	EventCancelled = "cancelled"
)

// NotificationEvent 发往外部通道（Redis、Kafka）的消息体
type NotificationEvent struct {
	Kind string `json:"kind"`
	Notification
}
