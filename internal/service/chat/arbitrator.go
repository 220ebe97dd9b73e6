package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Arbitrator resolves duplicate operator connections. Policy: newest tab
// wins. The displaced tab is warned and given a grace window to claim the
// session back with keep-this-tab; when the window lapses it is force
// disconnected. The arbitrator always runs on the instance holding the OLD
// socket; the rival may live anywhere, so it is evicted through a callback.
type Arbitrator struct {
	mu      sync.Mutex
	pending map[string]*tabDecision // userId -> open decision
	grace   time.Duration

	// forceDisconnect removes the presence entry, then closes the socket.
	// Registry removal MUST complete before the close so a concurrent
	// lookup cannot route to a dead connection.
	forceDisconnect func(conn *UserConn, reason string)
}

// tabRival identifies the connection contesting the session. evict tears it
// down wherever its socket is held.
type tabRival struct {
	ConnectionId string
	SessionId    string
	evict        func(reason string)
}

type tabDecision struct {
	oldConn *UserConn
	rival   tabRival
	timer   *time.Timer
}

func NewArbitrator(grace time.Duration, forceDisconnect func(conn *UserConn, reason string)) *Arbitrator {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Arbitrator{
		pending:         make(map[string]*tabDecision),
		grace:           grace,
		forceDisconnect: forceDisconnect,
	}
}

// Challenge is called when a rival registers for a user oldConn already
// holds. A same-session reconnect replaces the old tab silently; a
// different session opens a grace-window decision.
func (a *Arbitrator) Challenge(userId string, oldConn *UserConn, rival tabRival) {
	if oldConn == nil || oldConn.ConnectionId == rival.ConnectionId {
		return
	}
	if oldConn.SessionId != "" && oldConn.SessionId == rival.SessionId {
		a.forceDisconnect(oldConn, "replaced by reconnect")
		return
	}

	a.mu.Lock()
	if prev, ok := a.pending[userId]; ok {
		// A redelivered challenge for the same rival changes nothing.
		if prev.rival.ConnectionId == rival.ConnectionId {
			a.mu.Unlock()
			return
		}
		prev.timer.Stop()
		delete(a.pending, userId)
		a.mu.Unlock()
		a.forceDisconnect(prev.oldConn, "superseded")
		a.mu.Lock()
	}
	decision := &tabDecision{oldConn: oldConn, rival: rival}
	decision.timer = time.AfterFunc(a.grace, func() {
		a.expire(userId, decision)
	})
	a.pending[userId] = decision
	a.mu.Unlock()

	oldConn.PushEvent(EventMultipleTabs, map[string]string{
		"message": "Your account connected from another tab.",
	})
	zap.L().Info("tab challenge opened",
		zap.String("userId", userId),
		zap.String("oldConnectionId", oldConn.ConnectionId),
		zap.String("newConnectionId", rival.ConnectionId))
}

func (a *Arbitrator) expire(userId string, decision *tabDecision) {
	a.mu.Lock()
	current, ok := a.pending[userId]
	if !ok || current != decision {
		a.mu.Unlock()
		return
	}
	delete(a.pending, userId)
	a.mu.Unlock()

	a.forceDisconnect(decision.oldConn, "displaced by newer tab")
	zap.L().Info("tab challenge expired, old tab disconnected",
		zap.String("userId", userId),
		zap.String("connectionId", decision.oldConn.ConnectionId))
}

// Keep is the displaced tab claiming the session back. Returns the
// winning connection (the old tab) when the claim arrives in time, nil
// when there is nothing to claim.
func (a *Arbitrator) Keep(userId string, claimant *UserConn) *UserConn {
	a.mu.Lock()
	decision, ok := a.pending[userId]
	if !ok || decision.oldConn.ConnectionId != claimant.ConnectionId {
		a.mu.Unlock()
		return nil
	}
	decision.timer.Stop()
	delete(a.pending, userId)
	a.mu.Unlock()

	decision.rival.evict("older tab kept the session")
	zap.L().Info("tab challenge reversed, old tab kept",
		zap.String("userId", userId),
		zap.String("connectionId", claimant.ConnectionId))
	return decision.oldConn
}

// Forget drops any open decision involving conn; called when a socket
// disappears on its own mid-window.
func (a *Arbitrator) Forget(conn *UserConn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for userId, decision := range a.pending {
		if decision.oldConn.ConnectionId == conn.ConnectionId ||
			decision.rival.ConnectionId == conn.ConnectionId {
			decision.timer.Stop()
			delete(a.pending, userId)
		}
	}
}

// Close stops all outstanding timers.
func (a *Arbitrator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for userId, decision := range a.pending {
		decision.timer.Stop()
		delete(a.pending, userId)
	}
}
