package respond

// ChatRespond is the wire form of a chat for dashboard and notifications.
type ChatRespond struct {
	ChatId                string `json:"chatId"`
	StudentId             string `json:"studentId"`
	StudentName           string `json:"studentName"`
	StudentPhone          string `json:"studentPhone,omitempty"`
	CounsellorId          string `json:"counsellorId"`
	Status                string `json:"status"`
	LastMessage           string `json:"lastMessage,omitempty"`
	LastMessageAt         string `json:"lastMessageAt,omitempty"`
	UnreadCountStudent    int    `json:"unreadCountStudent"`
	UnreadCountCounsellor int    `json:"unreadCountCounsellor"`
	ClosedBy              string `json:"closedBy,omitempty"`
	ClosedReason          string `json:"closedReason,omitempty"`
}
