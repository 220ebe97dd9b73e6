package respond

// LoginRespond carries the dashboard access token.
type LoginRespond struct {
	Token  string `json:"token"`
	UserId string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}
