package request

// CloseChatRequest closes a chat from either side.
type CloseChatRequest struct {
	OperatorId string `json:"operatorId" binding:"required"`
	Role       string `json:"role" binding:"required"`
	Reason     string `json:"reason"`
}
