package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	myredis "edulead_chat_server/internal/dao/redis"
	"edulead_chat_server/internal/notify"
	"edulead_chat_server/internal/presence"
)

func newTestGateway(t *testing.T) *Gateway {
	return newTestGatewayGrace(t, time.Second)
}

func newTestGatewayGrace(t *testing.T, grace time.Duration) *Gateway {
	t.Helper()
	store := myredis.NewMemoryStore()
	registry := presence.NewRegistry(store, 0)
	queue := notify.NewQueue(store, 50, time.Hour)
	ledger := notify.NewLedger(store, 30*time.Second)
	dispatcher := notify.NewDispatcher(registry, queue, ledger, nil, nil)

	g := NewGateway(registry, dispatcher, nil, nil, NewChannelBackplane(), grace)
	dispatcher.SetEmitter(g)
	g.Start()
	t.Cleanup(func() { g.backplane.Close() })
	return g
}

// challengeFrame is what another instance publishes when a duplicate
// login lands on it.
func challengeFrame(t *testing.T, userId, connectionId, sessionId string) Frame {
	t.Helper()
	payload, err := json.Marshal(controlData{
		UserId:       userId,
		ConnectionId: connectionId,
		SessionId:    sessionId,
	})
	if err != nil {
		t.Fatal(err)
	}
	return Frame{Room: userRoom(userId), Event: ctrlTabChallenge, Payload: payload}
}

func awaitEvent(t *testing.T, conn *UserConn, want string) json.RawMessage {
	t.Helper()
	select {
	case frame := <-conn.SendBack:
		var event Event
		if err := json.Unmarshal(frame, &event); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if event.Event != want {
			t.Fatalf("got event %q, want %q", event.Event, want)
		}
		return event.Data
	case <-time.After(time.Second):
		t.Fatalf("no %q event arrived", want)
		return nil
	}
}

func assertNoEvent(t *testing.T, conn *UserConn) {
	t.Helper()
	select {
	case frame := <-conn.SendBack:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	g := newTestGateway(t)

	member1 := testConn("m1", "")
	member2 := testConn("m2", "")
	outsider := testConn("m3", "")
	for _, conn := range []*UserConn{member1, member2, outsider} {
		g.AddConn(conn)
	}
	g.joinRoom(member1, chatRoom("chat-1"))
	g.joinRoom(member2, chatRoom("chat-1"))
	g.joinRoom(outsider, chatRoom("chat-2"))

	err := g.BroadcastToChat(context.Background(), "chat-1", EventNewMessage, map[string]string{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}

	awaitEvent(t, member1, EventNewMessage)
	awaitEvent(t, member2, EventNewMessage)
	assertNoEvent(t, outsider)
}

func TestEmitToUserReachesPrivateRoom(t *testing.T) {
	g := newTestGateway(t)

	conn := testConn("c1", "")
	g.AddConn(conn)
	g.joinRoom(conn, userRoom("couns-1"))

	payload, _ := json.Marshal(map[string]string{"chatId": "chat-1"})
	if err := g.EmitToUser(context.Background(), "couns-1", "new_lead", payload); err != nil {
		t.Fatal(err)
	}

	data := awaitEvent(t, conn, "new_lead")
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["chatId"] != "chat-1" {
		t.Fatalf("payload lost in transit: %v", got)
	}
}

func TestRemovedConnGetsNothing(t *testing.T) {
	g := newTestGateway(t)

	conn := testConn("c1", "")
	g.AddConn(conn)
	g.joinRoom(conn, chatRoom("chat-1"))
	g.removeConn(conn)

	if err := g.BroadcastToChat(context.Background(), "chat-1", EventNewMessage, map[string]string{"content": "hi"}); err != nil {
		t.Fatal(err)
	}
	assertNoEvent(t, conn)
}

func TestTypingRelayedToRoom(t *testing.T) {
	g := newTestGateway(t)

	sender := testConn("c1", "")
	peer := testConn("c2", "")
	g.AddConn(sender)
	g.AddConn(peer)
	g.joinRoom(sender, chatRoom("chat-1"))
	g.joinRoom(peer, chatRoom("chat-1"))

	raw, _ := json.Marshal(typingData{ChatId: "chat-1", UserId: "stu-1", UserType: "Student", IsTyping: true})
	g.HandleEvent(sender, Event{Event: EventTyping, Data: raw})

	data := awaitEvent(t, peer, EventTypingStatus)
	var got typingData
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.IsTyping || got.UserId != "stu-1" {
		t.Fatalf("typing payload mangled: %+v", got)
	}
}

func TestChallengeFrameWarnsHeldTab(t *testing.T) {
	g := newTestGateway(t)

	old := testConn("old", "sess-a")
	g.AddConn(old)
	g.joinRoom(old, userRoom("couns-1"))

	// The duplicate login happened on another instance; only its control
	// frame reaches us.
	g.deliverLocal(challengeFrame(t, "couns-1", "remote-new", "sess-b"))

	awaitEvent(t, old, EventMultipleTabs)
	assertNoEvent(t, old)
}

func TestChallengeFrameExpiryDisconnectsHeldTab(t *testing.T) {
	g := newTestGatewayGrace(t, 20*time.Millisecond)

	old := testConn("old", "sess-a")
	g.AddConn(old)
	g.joinRoom(old, userRoom("couns-1"))

	g.deliverLocal(challengeFrame(t, "couns-1", "remote-new", "sess-b"))

	awaitEvent(t, old, EventMultipleTabs)
	awaitEvent(t, old, EventTabDisconnected)
	deadline := time.Now().Add(time.Second)
	for g.localConn("old") != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if g.localConn("old") != nil {
		t.Fatal("expired tab must leave the local tables")
	}
}

func TestKeepThisTabReleasesRivalOverBackplane(t *testing.T) {
	g := newTestGateway(t)

	old := testConn("old", "sess-a")
	rival := testConn("new", "sess-b")
	g.AddConn(old)
	g.AddConn(rival)
	g.joinRoom(old, userRoom("couns-1"))
	g.joinRoom(rival, userRoom("couns-1"))

	g.deliverLocal(challengeFrame(t, "couns-1", "new", "sess-b"))
	awaitEvent(t, old, EventMultipleTabs)

	g.HandleEvent(old, Event{Event: EventKeepThisTab})

	// The release frame travels the backplane and lands on the instance
	// holding the rival socket.
	awaitEvent(t, rival, EventTabDisconnected)
	assertNoEvent(t, old)
}

func TestIdleTeardownReachesHoldingInstance(t *testing.T) {
	g := newTestGateway(t)

	conn := testConn("c-idle", "sess-a")
	g.AddConn(conn)
	g.joinRoom(conn, userRoom("couns-1"))

	g.NotifyIdle(presence.Entry{UserId: "couns-1", ConnectionId: "c-idle"})

	awaitEvent(t, conn, EventConnectionIdle)
	deadline := time.Now().Add(time.Second)
	for g.localConn("c-idle") != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if g.localConn("c-idle") != nil {
		t.Fatal("idle teardown must drop the connection from the local tables")
	}
}
