package request

// SendMessageRequest is the send_message socket event payload.
type SendMessageRequest struct {
	ChatId     string `json:"chatId" binding:"required"`
	Content    string `json:"content" binding:"required"`
	SenderType string `json:"senderType" binding:"required"`
	SenderId   string `json:"senderId"`
	SenderName string `json:"senderName"`
}
