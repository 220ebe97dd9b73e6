package request

// MarkReadRequest is the mark_read socket event payload.
type MarkReadRequest struct {
	ChatId   string `json:"chatId" binding:"required"`
	UserType string `json:"userType" binding:"required"`
}
