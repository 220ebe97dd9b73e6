package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically sweeps the registry and evicts entries whose LastSeen
// exceeds the idle timeout. This bounds registry size when a connection
// dies without a disconnect event ever arriving.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration

	// onIdle is invoked for each evicted entry after its registry entry
	// has been removed; the gateway uses it to notify and close the
	// socket.
	onIdle func(Entry)

	stop chan struct{}
}

// NewReaper builds a reaper over the registry. onIdle may be nil.
func NewReaper(registry *Registry, interval, timeout time.Duration, onIdle func(Entry)) *Reaper {
	return &Reaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		onIdle:   onIdle,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Close is called.
func (r *Reaper) Start() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(context.Background(), time.Now())
		case <-r.stop:
			return
		}
	}
}

// Sweep evicts stale entries once. Split out from Start so the policy is
// testable without timers.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) {
	for _, role := range roles {
		entries, err := r.registry.ListByRole(ctx, role)
		if err != nil {
			zap.L().Error("presence sweep failed", zap.String("role", role), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if now.Sub(entry.LastSeen) < r.timeout {
				continue
			}
			// Remove before notifying: a reconnect racing the sweep
			// must never find the stale entry still registered.
			if err := r.registry.Remove(ctx, entry.UserId, entry.Role); err != nil {
				zap.L().Error("presence evict failed",
					zap.String("userId", entry.UserId), zap.Error(err))
				continue
			}
			zap.L().Info("idle connection reaped",
				zap.String("userId", entry.UserId),
				zap.String("role", entry.Role),
				zap.String("connectionId", entry.ConnectionId),
				zap.Time("lastSeen", entry.LastSeen),
			)
			if r.onIdle != nil {
				r.onIdle(entry)
			}
		}
	}
}

// Close stops the sweep loop.
func (r *Reaper) Close() {
	close(r.stop)
}
