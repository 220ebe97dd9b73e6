package chat

import "encoding/json"

// Event is the socket wire envelope. Every frame in both directions is
// {"event": ..., "data": ...}.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client-sent events.
const (
	EventLogin       = "counsellor-login"
	EventJoinChat    = "join_chat"
	EventJoinBoard   = "join_dashboard"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventMarkRead    = "mark_read"
	EventHeartbeat   = "heartbeat"
	EventKeepThisTab = "keep-this-tab"
	EventLogout      = "logout"
)

// Server-sent events.
const (
	EventLoginSuccess    = "login-success"
	EventLoginError      = "login-error"
	EventUserJoined      = "user_joined"
	EventUserStatus      = "user_status"
	EventNewMessage      = "new_message"
	EventDelivered       = "messages_delivered"
	EventTypingStatus    = "typing_status"
	EventMessagesRead    = "messages_read"
	EventMultipleTabs    = "multiple-tabs-detected"
	EventTabDisconnected = "tab-disconnected"
	EventConnectionIdle  = "connection-idle"
	EventError           = "error"
)

// Control frames travel between gateway instances on the backplane and are
// consumed by the gateway itself, never forwarded to a socket. They carry
// the cross-instance halves of tab arbitration and idle teardown: the
// instance deciding an eviction rarely holds the socket being evicted.
const (
	ctrlPrefix       = "ctrl:"
	ctrlTabChallenge = "ctrl:tab-challenge"
	ctrlTabRelease   = "ctrl:tab-release"
	ctrlConnIdle     = "ctrl:conn-idle"
)

type controlData struct {
	UserId       string `json:"userId"`
	ConnectionId string `json:"connectionId"`
	SessionId    string `json:"sessionId,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func newEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: payload})
}

// Room naming. A room is a named broadcast group; membership is
// process-local, the backplane carries frames between processes.
func chatRoom(chatId string) string { return "chat:" + chatId }
func userRoom(userId string) string { return "user:" + userId }
func supervisorRoom() string        { return "supervisors" }

type loginData struct {
	Token string `json:"token"`
	// SessionId groups tabs of one browser session; a reconnect of the
	// same tab reuses it.
	SessionId string `json:"sessionId"`
}

type joinChatData struct {
	ChatId   string `json:"chatId"`
	UserId   string `json:"userId"`
	UserType string `json:"userType"`
	UserName string `json:"userName"`
}

type typingData struct {
	ChatId   string `json:"chatId"`
	UserId   string `json:"userId"`
	UserType string `json:"userType"`
	IsTyping bool   `json:"isTyping"`
}
