package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 通知事件类型
const (
	EventPartCreated    = "part_created"
	EventPartUpdated    = "part_updated"
	EventPartDeleted    = "part_deleted"
	EventBulkDelete     = "bulk_delete"
	EventImportFinished = "import_finished"
)

// Notifier 尽力而为的实时通知，不返回错误，也不阻塞调用方
type Notifier interface {
	Notify(eventType, message, partID string)
}

// Notification 发布到 Redis 频道的消息体
type Notification struct {
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	PartID    string    `json:"part_id,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastNotifier 推送到本进程的 SSE 连接，并可选发布到 Redis 频道供其他实例转发
type BroadcastNotifier struct {
	hub     *sse.Hub
	rdb     *redis.Client
	origin  string
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

// NewBroadcastNotifier hub 和 rdb 均可为空
func NewBroadcastNotifier(hub *sse.Hub, rdb *redis.Client, channel string, logger *zap.Logger) *BroadcastNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BroadcastNotifier{
		hub:     hub,
		rdb:     rdb,
		origin:  uuid.New().String(),
		channel: channel,
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

func (n *BroadcastNotifier) Notify(eventType, message, partID string) {
	if n.hub != nil {
		n.hub.PublishNotification(eventType, message, partID)
	}
	if n.rdb == nil || n.channel == "" {
		return
	}

	payload, err := json.Marshal(Notification{
		Event:     eventType,
		Message:   message,
		PartID:    partID,
		Origin:    n.origin,
		Timestamp: time.Now(),
	})
	if err != nil {
		n.logger.Error("marshal notification", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
			n.logger.Warn("publish notification failed",
				zap.String("event", eventType),
				zap.String("channel", n.channel),
				zap.Error(err),
			)
		}
	}()
}

// Relay 订阅 Redis 频道，把其他实例发布的通知转发给本地 SSE 连接，直到 ctx 结束。
// 本实例自己发布的消息已经推送过，跳过。
func (n *BroadcastNotifier) Relay(ctx context.Context) {
	if n.rdb == nil || n.hub == nil || n.channel == "" {
		return
	}
	sub := n.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var note Notification
			if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
				n.logger.Warn("invalid notification payload", zap.Error(err))
				continue
			}
			if note.Origin == n.origin {
				continue
			}
			n.hub.PublishNotification(note.Event, note.Message, note.PartID)
		}
	}
}

// nopNotifier 丢弃所有通知
type nopNotifier struct{}

func (nopNotifier) Notify(string, string, string) {}

// NopNotifier 不发送任何通知
func NopNotifier() Notifier { return nopNotifier{} }
