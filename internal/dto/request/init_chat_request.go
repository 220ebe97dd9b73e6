package request

// InitChatRequest is the lead-intake payload from the website widget.
type InitChatRequest struct {
	StudentId       string            `json:"studentId"`
	StudentName     string            `json:"studentName" binding:"required"`
	StudentPhone    string            `json:"studentPhone" binding:"required"`
	PlatformDetails map[string]string `json:"platformDetails"`
}
