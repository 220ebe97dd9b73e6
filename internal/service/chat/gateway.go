package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	dao "edulead_chat_server/internal/dao/mysql/repository"
	"edulead_chat_server/internal/dto/request"
	"edulead_chat_server/internal/notify"
	"edulead_chat_server/internal/presence"
	"edulead_chat_server/internal/service/chatflow"
	"edulead_chat_server/pkg/enum/message/sender_type_enum"
	"edulead_chat_server/pkg/errorx"
	"edulead_chat_server/pkg/util/jwt"

	"go.uber.org/zap"
)

// Gateway owns every local socket and the local room tables. Broadcasts go
// through the backplane so all gateway instances deliver to their own
// members; direct pushes to a local conn never do.
type Gateway struct {
	registry   *presence.Registry
	dispatcher *notify.Dispatcher
	flow       *chatflow.Service
	repos      *dao.Repositories
	backplane  Backplane
	arbitrator *Arbitrator

	mu        sync.Mutex
	conns     map[string]*UserConn            // connectionId -> conn
	userConns map[string]*UserConn            // operator userId -> conn
	rooms     map[string]map[string]*UserConn // room -> connectionId -> conn
}

func NewGateway(registry *presence.Registry, dispatcher *notify.Dispatcher, flow *chatflow.Service, repos *dao.Repositories, backplane Backplane, tabGrace time.Duration) *Gateway {
	g := &Gateway{
		registry:   registry,
		dispatcher: dispatcher,
		flow:       flow,
		repos:      repos,
		backplane:  backplane,
		conns:      make(map[string]*UserConn),
		userConns:  make(map[string]*UserConn),
		rooms:      make(map[string]map[string]*UserConn),
	}
	g.arbitrator = NewArbitrator(tabGrace, g.ForceDisconnect)
	return g
}

// Start begins consuming backplane frames.
func (g *Gateway) Start() {
	g.backplane.Start(g.deliverLocal)
}

// Close disconnects every socket and stops the backplane.
func (g *Gateway) Close() {
	g.arbitrator.Close()
	g.mu.Lock()
	conns := make([]*UserConn, 0, len(g.conns))
	for _, conn := range g.conns {
		conns = append(conns, conn)
	}
	g.mu.Unlock()
	for _, conn := range conns {
		g.removeConn(conn)
		conn.CloseConn()
	}
	g.backplane.Close()
}

// AddConn registers a freshly upgraded socket. Identity attaches later via
// login or join_chat.
func (g *Gateway) AddConn(conn *UserConn) {
	g.mu.Lock()
	g.conns[conn.ConnectionId] = conn
	g.mu.Unlock()
}

// --- backplane fan-out ---

// BroadcastToChat publishes an event to every member of the chat room,
// across all gateway instances. Implements the lifecycle manager's
// broadcaster.
func (g *Gateway) BroadcastToChat(ctx context.Context, chatId, event string, payload any) error {
	return g.publish(ctx, chatRoom(chatId), event, payload)
}

// EmitToUser pushes an event at a single operator's private room.
// Implements notify.Emitter; the dispatcher has already checked presence.
func (g *Gateway) EmitToUser(ctx context.Context, userId, event string, payload json.RawMessage) error {
	return g.backplane.Publish(ctx, Frame{Room: userRoom(userId), Event: event, Payload: payload})
}

func (g *Gateway) publish(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return g.backplane.Publish(ctx, Frame{Room: room, Event: event, Payload: data})
}

// deliverLocal hands a consumed frame to local members of its room.
// Control frames are executed here instead of forwarded.
func (g *Gateway) deliverLocal(frame Frame) {
	if strings.HasPrefix(frame.Event, ctrlPrefix) {
		g.handleControl(frame)
		return
	}
	wire, err := json.Marshal(Event{Event: frame.Event, Data: frame.Payload})
	if err != nil {
		zap.L().Error("marshal frame failed", zap.Error(err))
		return
	}
	g.mu.Lock()
	members := make([]*UserConn, 0, len(g.rooms[frame.Room]))
	for _, conn := range g.rooms[frame.Room] {
		members = append(members, conn)
	}
	g.mu.Unlock()
	for _, conn := range members {
		conn.Push(wire)
	}
}

// handleControl executes a cross-instance control frame. Arbitration and
// idle teardown act on whichever instance holds the socket, so the
// deciding instance publishes a control frame instead of touching a conn
// it may not have.
func (g *Gateway) handleControl(frame Frame) {
	var ctl controlData
	if err := json.Unmarshal(frame.Payload, &ctl); err != nil {
		zap.L().Warn("bad control frame",
			zap.String("event", frame.Event), zap.Error(err))
		return
	}
	switch frame.Event {
	case ctrlTabChallenge:
		g.challengeLocalTabs(ctl)
	case ctrlTabRelease:
		if conn := g.localConn(ctl.ConnectionId); conn != nil {
			g.ForceDisconnect(conn, ctl.Reason)
		}
	case ctrlConnIdle:
		conn := g.localConn(ctl.ConnectionId)
		if conn == nil {
			return
		}
		conn.PushEvent(EventConnectionIdle, map[string]string{
			"message": "disconnected after inactivity",
		})
		g.removeConn(conn)
		time.AfterFunc(100*time.Millisecond, conn.CloseConn)
	}
}

func (g *Gateway) localConn(connectionId string) *UserConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[connectionId]
}

// challengeLocalTabs opens an arbitration decision against every locally
// held connection of the user other than the newly registered one. The
// rival's eviction is itself a control frame, so keep-this-tab works when
// the two tabs landed on different instances.
func (g *Gateway) challengeLocalTabs(ctl controlData) {
	g.mu.Lock()
	members := make([]*UserConn, 0, len(g.rooms[userRoom(ctl.UserId)]))
	for _, conn := range g.rooms[userRoom(ctl.UserId)] {
		members = append(members, conn)
	}
	g.mu.Unlock()

	rival := tabRival{
		ConnectionId: ctl.ConnectionId,
		SessionId:    ctl.SessionId,
		evict: func(reason string) {
			_ = g.publish(context.Background(), userRoom(ctl.UserId), ctrlTabRelease, controlData{
				UserId:       ctl.UserId,
				ConnectionId: ctl.ConnectionId,
				Reason:       reason,
			})
		},
	}
	for _, old := range members {
		if old.ConnectionId == ctl.ConnectionId {
			continue
		}
		g.arbitrator.Challenge(ctl.UserId, old, rival)
	}
}

// --- room membership ---

func (g *Gateway) joinRoom(conn *UserConn, room string) {
	g.mu.Lock()
	if g.rooms[room] == nil {
		g.rooms[room] = make(map[string]*UserConn)
	}
	g.rooms[room][conn.ConnectionId] = conn
	g.mu.Unlock()
}

func (g *Gateway) removeConn(conn *UserConn) {
	g.mu.Lock()
	delete(g.conns, conn.ConnectionId)
	if existing, ok := g.userConns[conn.UserId]; ok && existing.ConnectionId == conn.ConnectionId {
		delete(g.userConns, conn.UserId)
	}
	for room, members := range g.rooms {
		delete(members, conn.ConnectionId)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	g.mu.Unlock()
}

// --- event handling ---

// HandleEvent routes one decoded client event.
func (g *Gateway) HandleEvent(conn *UserConn, event Event) {
	switch event.Event {
	case EventLogin:
		g.handleLogin(conn, event.Data)
	case EventJoinChat:
		g.handleJoinChat(conn, event.Data)
	case EventJoinBoard:
		g.handleJoinDashboard(conn)
	case EventSendMessage:
		g.handleSendMessage(conn, event.Data)
	case EventTyping:
		g.handleTyping(conn, event.Data)
	case EventMarkRead:
		g.handleMarkRead(conn, event.Data)
	case EventHeartbeat:
		g.handleHeartbeat(conn)
	case EventKeepThisTab:
		g.handleKeepThisTab(conn)
	case EventLogout:
		g.ForceDisconnect(conn, "logout")
	default:
		zap.L().Warn("unknown event",
			zap.String("event", event.Event),
			zap.String("connectionId", conn.ConnectionId))
		conn.PushEvent(EventError, map[string]string{"message": "unknown event: " + event.Event})
	}
}

// handleLogin authenticates an operator socket with its dashboard token,
// registers presence (last writer wins), arbitrates duplicate tabs, and
// replays queued notifications.
func (g *Gateway) handleLogin(conn *UserConn, data json.RawMessage) {
	var payload loginData
	if err := json.Unmarshal(data, &payload); err != nil {
		conn.PushEvent(EventLoginError, map[string]string{"message": "malformed login"})
		return
	}
	claims, err := jwt.ParseToken(payload.Token)
	if err != nil {
		conn.PushEvent(EventLoginError, map[string]string{"message": "invalid token"})
		return
	}
	counsellor, err := g.repos.Counsellor.FindByUuid(claims.UserID)
	if err != nil {
		conn.PushEvent(EventLoginError, map[string]string{"message": "unknown account"})
		return
	}

	conn.UserId = counsellor.Uuid
	conn.UserType = sender_type_enum.Counsellor
	conn.UserName = counsellor.Name
	conn.SessionId = payload.SessionId

	role := presence.RoleCounsellor
	if counsellor.Role == "supervisor" {
		role = presence.RoleSupervisor
	}
	conn.Role = role

	g.mu.Lock()
	g.userConns[counsellor.Uuid] = conn
	g.mu.Unlock()

	ctx := context.Background()
	if err := g.registry.Register(ctx, presence.Entry{
		UserId:       counsellor.Uuid,
		Role:         role,
		ConnectionId: conn.ConnectionId,
		SessionId:    conn.SessionId,
		LastSeen:     time.Now(),
	}); err != nil {
		zap.L().Error("presence register failed",
			zap.String("userId", counsellor.Uuid), zap.Error(err))
	}

	g.joinRoom(conn, userRoom(counsellor.Uuid))
	if role == presence.RoleSupervisor {
		g.joinRoom(conn, supervisorRoom())
	}

	// Any older tab of this user is challenged on the instance holding
	// its socket, this one included.
	if err := g.publish(ctx, userRoom(counsellor.Uuid), ctrlTabChallenge, controlData{
		UserId:       counsellor.Uuid,
		ConnectionId: conn.ConnectionId,
		SessionId:    conn.SessionId,
	}); err != nil {
		zap.L().Error("tab challenge publish failed",
			zap.String("userId", counsellor.Uuid), zap.Error(err))
	}

	conn.PushEvent(EventLoginSuccess, map[string]string{
		"userId": counsellor.Uuid,
		"name":   counsellor.Name,
		"role":   counsellor.Role,
	})
	zap.L().Info("operator socket login",
		zap.String("userId", counsellor.Uuid),
		zap.String("role", role),
		zap.String("connectionId", conn.ConnectionId))

	// Everything missed while offline, oldest first, one event per
	// category.
	g.dispatcher.Replay(ctx, counsellor.Uuid, func(event string, batch []notify.Notification) {
		conn.PushEvent(event, batch)
	})
}

func (g *Gateway) handleJoinChat(conn *UserConn, data json.RawMessage) {
	var payload joinChatData
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatId == "" {
		conn.PushEvent(EventError, map[string]string{"message": "malformed join_chat"})
		return
	}
	if conn.UserId == "" {
		conn.UserId = payload.UserId
		conn.UserType = payload.UserType
		conn.UserName = payload.UserName
	}
	g.joinRoom(conn, chatRoom(payload.ChatId))

	ctx := context.Background()
	_ = g.publish(ctx, chatRoom(payload.ChatId), EventUserJoined, map[string]string{
		"chatId":   payload.ChatId,
		"userId":   conn.UserId,
		"userType": conn.UserType,
		"userName": conn.UserName,
	})
	_ = g.publish(ctx, chatRoom(payload.ChatId), EventUserStatus, map[string]any{
		"chatId":   payload.ChatId,
		"userId":   conn.UserId,
		"userType": conn.UserType,
		"online":   true,
	})
}

func (g *Gateway) handleJoinDashboard(conn *UserConn) {
	if conn.UserId == "" {
		conn.PushEvent(EventError, map[string]string{"message": "login required"})
		return
	}
	g.joinRoom(conn, userRoom(conn.UserId))
}

func (g *Gateway) handleSendMessage(conn *UserConn, data json.RawMessage) {
	var req request.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.PushEvent(EventError, map[string]string{"message": "malformed send_message"})
		return
	}
	if req.SenderId == "" {
		req.SenderId = conn.UserId
	}
	if req.SenderName == "" {
		req.SenderName = conn.UserName
	}
	rsp, err := g.flow.AddMessage(context.Background(), req)
	if err != nil {
		msg := "message failed"
		if errorx.GetCode(err) == errorx.CodeChatClosed {
			msg = "chat is closed"
		} else if errorx.GetCode(err) == errorx.CodeNotFound {
			msg = "chat not found"
		}
		conn.PushEvent(EventError, map[string]string{
			"message": msg,
			"chatId":  req.ChatId,
		})
		return
	}
	// Persistence ack to the sender, independent of how delivery to the
	// other side turns out.
	conn.PushEvent(EventDelivered, rsp)
}

func (g *Gateway) handleTyping(conn *UserConn, data json.RawMessage) {
	var payload typingData
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatId == "" {
		return
	}
	if payload.UserId == "" {
		payload.UserId = conn.UserId
		payload.UserType = conn.UserType
	}
	// Transient, fire-and-forget; never persisted.
	_ = g.publish(context.Background(), chatRoom(payload.ChatId), EventTypingStatus, payload)
}

func (g *Gateway) handleMarkRead(conn *UserConn, data json.RawMessage) {
	var req request.MarkReadRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.PushEvent(EventError, map[string]string{"message": "malformed mark_read"})
		return
	}
	if req.UserType == "" {
		req.UserType = conn.UserType
	}
	if err := g.flow.MarkRead(context.Background(), req); err != nil {
		conn.PushEvent(EventError, map[string]string{
			"message": "mark read failed",
			"chatId":  req.ChatId,
		})
	}
}

func (g *Gateway) handleHeartbeat(conn *UserConn) {
	if conn.UserId == "" || conn.Role == "" {
		return
	}
	if err := g.registry.Touch(context.Background(), conn.UserId, conn.Role, time.Now()); err != nil {
		zap.L().Debug("presence touch failed",
			zap.String("userId", conn.UserId), zap.Error(err))
	}
}

func (g *Gateway) handleKeepThisTab(conn *UserConn) {
	if conn.UserId == "" {
		return
	}
	winner := g.arbitrator.Keep(conn.UserId, conn)
	if winner == nil {
		return
	}
	// The old tab won the session back; its registry entry must win too.
	g.mu.Lock()
	g.userConns[winner.UserId] = winner
	g.mu.Unlock()
	if err := g.registry.Register(context.Background(), presence.Entry{
		UserId:       winner.UserId,
		Role:         winner.Role,
		ConnectionId: winner.ConnectionId,
		SessionId:    winner.SessionId,
		LastSeen:     time.Now(),
	}); err != nil {
		zap.L().Error("presence re-register failed",
			zap.String("userId", winner.UserId), zap.Error(err))
	}
}

// --- disconnect paths ---

// ForceDisconnect is the server-initiated teardown: the registry entry is
// removed before the socket closes so no dispatcher can route to a dead
// connection.
func (g *Gateway) ForceDisconnect(conn *UserConn, reason string) {
	g.removePresenceIfOwner(conn)
	conn.PushEvent(EventTabDisconnected, map[string]string{"reason": reason})
	g.removeConn(conn)
	// Give the write pump a moment to flush the farewell frame.
	time.AfterFunc(100*time.Millisecond, conn.CloseConn)
	zap.L().Info("forced disconnect",
		zap.String("connectionId", conn.ConnectionId),
		zap.String("userId", conn.UserId),
		zap.String("reason", reason))
}

// HandleDisconnect is the cleanup path for a socket that went away on its
// own. A duplicate-tab registration may already own the registry entry, so
// removal is conditional on ConnectionId.
func (g *Gateway) HandleDisconnect(conn *UserConn) {
	g.arbitrator.Forget(conn)
	g.removePresenceIfOwner(conn)
	g.broadcastOffline(conn)
	g.removeConn(conn)
	conn.CloseConn()
	zap.L().Info("ws disconnected",
		zap.String("connectionId", conn.ConnectionId),
		zap.String("userId", conn.UserId))
}

// NotifyIdle warns an idle connection it is being dropped and closes it.
// The reaper has already removed the presence entry; the socket may be
// held by any instance, so the teardown travels over the backplane.
func (g *Gateway) NotifyIdle(entry presence.Entry) {
	if err := g.publish(context.Background(), userRoom(entry.UserId), ctrlConnIdle, controlData{
		UserId:       entry.UserId,
		ConnectionId: entry.ConnectionId,
	}); err != nil {
		zap.L().Error("idle teardown publish failed",
			zap.String("userId", entry.UserId), zap.Error(err))
	}
}

func (g *Gateway) removePresenceIfOwner(conn *UserConn) {
	if conn.UserId == "" || conn.UserType != sender_type_enum.Counsellor {
		return
	}
	ctx := context.Background()
	entry, online, err := g.registry.Lookup(ctx, conn.UserId)
	if err != nil || !online {
		return
	}
	// Only the entry's current owner may remove it; a newer tab's entry
	// stays.
	if entry.ConnectionId != conn.ConnectionId {
		return
	}
	if err := g.registry.Remove(ctx, conn.UserId, entry.Role); err != nil {
		zap.L().Error("presence remove failed",
			zap.String("userId", conn.UserId), zap.Error(err))
	}
}

// broadcastOffline announces the departure to every chat room the
// connection was in.
func (g *Gateway) broadcastOffline(conn *UserConn) {
	if conn.UserId == "" {
		return
	}
	g.mu.Lock()
	var chatRooms []string
	for room, members := range g.rooms {
		if _, ok := members[conn.ConnectionId]; ok && strings.HasPrefix(room, "chat:") {
			chatRooms = append(chatRooms, room)
		}
	}
	g.mu.Unlock()
	ctx := context.Background()
	for _, room := range chatRooms {
		_ = g.publish(ctx, room, EventUserStatus, map[string]any{
			"chatId":   room[5:],
			"userId":   conn.UserId,
			"userType": conn.UserType,
			"online":   false,
		})
	}
}

var _ notify.Emitter = (*Gateway)(nil)
var _ chatflow.RoomBroadcaster = (*Gateway)(nil)
