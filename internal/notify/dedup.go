// Package notify decides how an event reaches its target: a live socket
// emit when the user is present, a durable queue entry otherwise, with a
// dedup ledger guarding against duplicate triggers either way.
package notify

import (
	"context"
	"fmt"
	"time"

	myredis "edulead_chat_server/internal/dao/redis"
)

// Ledger stores short-lived markers keyed by logical event. A repeat of the
// same logical event inside the window is discarded without side effects.
// Markers are an explicit record with a TTL, not ad hoc timestamp
// comparisons at call sites.
type Ledger struct {
	store  myredis.KVStore
	window time.Duration
}

// NewLedger creates a ledger with the given dedup window.
func NewLedger(store myredis.KVStore, window time.Duration) *Ledger {
	return &Ledger{store: store, window: window}
}

// EventKey builds the logical key for an event: target + actor + event
// type + a coarse time bucket. A logical event is "this event to this
// recipient": a retried trigger to the same recipient collides, while one
// trigger fanned out to several recipients carries a distinct key per
// recipient.
func (l *Ledger) EventKey(targetUserId, actor, event string, at time.Time) string {
	bucket := at.Truncate(l.window).Unix()
	return fmt.Sprintf("dedup:%s:%s:%s:%d", targetUserId, actor, event, bucket)
}

// FirstSeen atomically records the marker and reports whether this is the
// first processing of the event within the window.
func (l *Ledger) FirstSeen(ctx context.Context, eventKey string) (bool, error) {
	return l.store.SetNX(ctx, eventKey, "1", l.window)
}
