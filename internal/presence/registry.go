// Package presence tracks which operators are connected and where. The
// registry lives in the shared store so any server process can route an
// event to a user whose socket is held by a different process; nothing here
// is process-local.
package presence

import (
	"context"
	"encoding/json"
	"time"

	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/pkg/errorx"
)

// Roles using the registry. Each role is its own namespace; a user holds at
// most one entry per role.
const (
	RoleCounsellor = "counsellor"
	RoleSupervisor = "supervisor"
)

var roles = []string{RoleCounsellor, RoleSupervisor}

// Entry records one live connection for a user. Its lifetime is bound to an
// active network connection: overwritten on reconnect, removed on confirmed
// disconnect or idle timeout.
type Entry struct {
	UserId       string            `json:"userId"`
	Role         string            `json:"role"`
	ConnectionId string            `json:"connectionId"`
	SessionId    string            `json:"sessionId"`
	LastSeen     time.Time         `json:"lastSeen"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Registry is the shared presence store.
type Registry struct {
	store myredis.KVStore
	// ttl is a safety net for entries orphaned by a crashed process; the
	// reaper normally removes stale entries first.
	ttl time.Duration
}

// NewRegistry creates a registry on the given store. entryTTL bounds how
// long an orphaned entry can survive; 0 disables the safety expiry.
func NewRegistry(store myredis.KVStore, entryTTL time.Duration) *Registry {
	return &Registry{store: store, ttl: entryTTL}
}

func key(role, userId string) string {
	return "presence:" + role + ":" + userId
}

// Register upserts the entry for (userId, role). Writes are idempotent and
// last-writer-wins on ConnectionId: re-registering is how "this is now the
// active tab" is expressed.
func (r *Registry) Register(ctx context.Context, entry Entry) error {
	if entry.UserId == "" || entry.Role == "" {
		return errorx.New(errorx.CodeInvalidParam, "presence entry needs userId and role")
	}
	if entry.LastSeen.IsZero() {
		entry.LastSeen = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "marshal presence entry")
	}
	return r.store.Set(ctx, key(entry.Role, entry.UserId), string(data), r.ttl)
}

// Lookup returns the entry for userId, searching every role namespace.
func (r *Registry) Lookup(ctx context.Context, userId string) (*Entry, bool, error) {
	for _, role := range roles {
		value, err := r.store.Get(ctx, key(role, userId))
		if err != nil {
			return nil, false, err
		}
		if value == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			return nil, false, errorx.Wrap(err, errorx.CodeCacheError, "unmarshal presence entry")
		}
		return &entry, true, nil
	}
	return nil, false, nil
}

// Remove deletes the entry for (userId, role). Callers performing a forced
// disconnect must call this before accepting a new registration for the
// same user, so a stale entry cannot win a race.
func (r *Registry) Remove(ctx context.Context, userId, role string) error {
	return r.store.Delete(ctx, key(role, userId))
}

// Touch refreshes LastSeen on an existing entry. Absent entries are not
// resurrected.
func (r *Registry) Touch(ctx context.Context, userId, role string, at time.Time) error {
	value, err := r.store.Get(ctx, key(role, userId))
	if err != nil || value == "" {
		return err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "unmarshal presence entry")
	}
	entry.LastSeen = at
	return r.Register(ctx, entry)
}

// ListByRole returns every live entry for a role.
func (r *Registry) ListByRole(ctx context.Context, role string) ([]Entry, error) {
	pairs, err := r.store.GetByPrefix(ctx, "presence:"+role+":")
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(pairs))
	for _, value := range pairs {
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			continue // skip corrupt entries rather than failing the sweep
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
