package respond

// UnreadCountRespond totals a counsellor's unread messages across open
// chats.
type UnreadCountRespond struct {
	CounsellorId string `json:"counsellorId"`
	Unread       int64  `json:"unread"`
}
