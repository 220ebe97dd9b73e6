package notify

import (
	"context"
	"encoding/json"
	"time"

	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/pkg/errorx"

	"github.com/google/uuid"
)

// Notification categories used to name the replay event on reconnect.
const (
	CategoryLead     = "lead"
	CategoryWhatsapp = "whatsapp"
	CategoryOther    = "other"
)

// Notification is one undelivered event parked for an offline user. It is
// consumed (and deleted) on the user's next successful connection.
type Notification struct {
	Id           string          `json:"id"`
	TargetUserId string          `json:"targetUserId"`
	Event        string          `json:"event"`
	Category     string          `json:"category"`
	Payload      json.RawMessage `json:"payload"`
	StoredAt     time.Time       `json:"storedAt"`
}

// CategoryFor maps an event name to its replay category.
func CategoryFor(event string) string {
	switch event {
	case "new_lead", "chat_created", "chat_assigned":
		return CategoryLead
	case "whatsapp_notification":
		return CategoryWhatsapp
	}
	return CategoryOther
}

// Queue is the per-user durable holding area for undelivered notifications.
// It is bounded (the cap most-recent entries survive) and TTL'd: entries
// that outlive the retention window are dropped, not retried indefinitely.
type Queue struct {
	store myredis.KVStore
	cap   int64
	ttl   time.Duration
}

// NewQueue creates a queue with the given bound and retention.
func NewQueue(store myredis.KVStore, cap int64, ttl time.Duration) *Queue {
	return &Queue{store: store, cap: cap, ttl: ttl}
}

func pendingKey(userId string) string {
	return "pending:" + userId
}

// Append parks a notification for an offline user.
func (q *Queue) Append(ctx context.Context, n Notification) error {
	if n.Id == "" {
		n.Id = uuid.NewString()
	}
	if n.StoredAt.IsZero() {
		n.StoredAt = time.Now()
	}
	if n.Category == "" {
		n.Category = CategoryFor(n.Event)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "marshal pending notification")
	}
	return q.store.AppendToList(ctx, pendingKey(n.TargetUserId), string(data), q.cap, q.ttl)
}

// Drain returns the user's queued notifications in stored (FIFO) order and
// clears the queue in the same operation.
func (q *Queue) Drain(ctx context.Context, userId string) ([]Notification, error) {
	values, err := q.store.DrainList(ctx, pendingKey(userId))
	if err != nil {
		return nil, err
	}
	notifications := make([]Notification, 0, len(values))
	for _, value := range values {
		var n Notification
		if err := json.Unmarshal([]byte(value), &n); err != nil {
			continue // a corrupt entry is dropped, never replayed
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}
