package notify

import (
	"context"
	"encoding/json"
	"time"

	"edulead_chat_server/internal/presence"

	"go.uber.org/zap"
)

// Emitter pushes an event to a user's live connection. Implemented by the
// socket gateway; the dispatcher stays transport-agnostic.
type Emitter interface {
	EmitToUser(ctx context.Context, userId, event string, payload json.RawMessage) error
}

// Dispatcher routes an event to its target: one live delivery attempt via
// the presence registry, durable queue fallback otherwise. Delivery
// failures are absorbed here and never fail the triggering business
// operation.
type Dispatcher struct {
	registry *presence.Registry
	queue    *Queue
	ledger   *Ledger
	emitter  Emitter
	now      func() time.Time
}

// NewDispatcher wires the dispatcher. emitter may be nil at construction
// and injected later with SetEmitter once the gateway exists. now may be
// nil (defaults to time.Now); tests inject a fixed clock.
func NewDispatcher(registry *presence.Registry, queue *Queue, ledger *Ledger, emitter Emitter, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		registry: registry,
		queue:    queue,
		ledger:   ledger,
		emitter:  emitter,
		now:      now,
	}
}

// SetEmitter injects the live-delivery transport once it exists.
func (d *Dispatcher) SetEmitter(emitter Emitter) {
	d.emitter = emitter
}

// Deliver attempts delivery of event to targetUserId. actor identifies the
// trigger source for dedup purposes. Returns whether the event reached a
// live connection; false means it was queued (or suppressed as a
// duplicate). The returned error is always nil for transport problems —
// those are logged and queued — and non-nil only for marshalling bugs.
func (d *Dispatcher) Deliver(ctx context.Context, targetUserId, event, actor string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	// 1. Dedup: first processing of this logical event wins; repeats
	// within the window are discarded without side effects. The marker is
	// recorded here, before the delivery attempt, so it holds regardless
	// of outcome.
	eventKey := d.ledger.EventKey(targetUserId, actor, event, d.now())
	first, err := d.ledger.FirstSeen(ctx, eventKey)
	if err != nil {
		// A ledger outage must not lose notifications; proceed as if
		// first and accept the duplicate risk.
		zap.L().Warn("dedup ledger unavailable, delivering anyway",
			zap.String("eventKey", eventKey), zap.Error(err))
	} else if !first {
		zap.L().Debug("duplicate event suppressed",
			zap.String("eventKey", eventKey), zap.String("target", targetUserId))
		return false, nil
	}

	// 2. Live attempt when the target is present somewhere.
	entry, online, err := d.registry.Lookup(ctx, targetUserId)
	if err != nil {
		zap.L().Warn("presence lookup failed, queueing",
			zap.String("target", targetUserId), zap.Error(err))
		online = false
	}
	if online && d.emitter != nil {
		if err := d.emitter.EmitToUser(ctx, targetUserId, event, data); err == nil {
			return true, nil
		} else {
			zap.L().Warn("live delivery failed, falling back to queue",
				zap.String("target", targetUserId),
				zap.String("event", event),
				zap.String("connectionId", entry.ConnectionId),
				zap.Error(err))
		}
	}

	// 3. Durable fallback: not-delivered but not lost while the queue
	// entry is alive.
	if err := d.queue.Append(ctx, Notification{
		TargetUserId: targetUserId,
		Event:        event,
		Payload:      data,
		StoredAt:     d.now(),
	}); err != nil {
		zap.L().Error("pending queue append failed",
			zap.String("target", targetUserId),
			zap.String("event", event),
			zap.Error(err))
	}
	return false, nil
}

// Replay drains the user's pending queue on reconnect and hands each
// category batch to emit as "<category>_pending_notifications", preserving
// FIFO order within the queue. No ordering is guaranteed between the replay
// and live events generated during it.
func (d *Dispatcher) Replay(ctx context.Context, userId string, emit func(event string, batch []Notification)) {
	notifications, err := d.queue.Drain(ctx, userId)
	if err != nil {
		zap.L().Error("pending queue drain failed",
			zap.String("userId", userId), zap.Error(err))
		return
	}
	if len(notifications) == 0 {
		return
	}

	// Group by category, keeping first-seen category order and FIFO
	// within each batch.
	order := make([]string, 0, 3)
	batches := make(map[string][]Notification)
	for _, n := range notifications {
		category := n.Category
		if category == "" {
			category = CategoryFor(n.Event)
		}
		if _, seen := batches[category]; !seen {
			order = append(order, category)
		}
		batches[category] = append(batches[category], n)
	}
	for _, category := range order {
		emit(category+"_pending_notifications", batches[category])
	}
	zap.L().Info("pending notifications replayed",
		zap.String("userId", userId), zap.Int("count", len(notifications)))
}
