package respond

// MessageRespond is the wire form of a message. Id is the snowflake id as a
// string to survive JavaScript number precision.
type MessageRespond struct {
	Id          string `json:"id"`
	ChatId      string `json:"chatId"`
	Content     string `json:"content"`
	SenderType  string `json:"senderType"`
	SenderId    string `json:"senderId,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	CreatedAt   string `json:"createdAt"`
	IsDelivered bool   `json:"isDelivered"`
	IsRead      bool   `json:"isRead"`
}
