package respond

// InitChatRespond reports the intake outcome. IsOffline means intake was
// outside business hours and no chat was created.
type InitChatRespond struct {
	IsOffline    bool   `json:"isOffline"`
	ChatId       string `json:"chatId,omitempty"`
	CounsellorId string `json:"counsellorId,omitempty"`
	Status       string `json:"status,omitempty"`
	Existing     bool   `json:"existing,omitempty"`
}
