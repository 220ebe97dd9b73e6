package handler

import (
	"edulead_chat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WsHandler upgrades sockets into the gateway.
type WsHandler struct {
	gateway *chat.Gateway
}

func NewWsHandler(gateway *chat.Gateway) *WsHandler {
	return &WsHandler{gateway: gateway}
}

// Connect upgrades the request to a WebSocket. The connection starts
// anonymous; identity attaches via counsellor-login or join_chat events.
// GET /ws
func (h *WsHandler) Connect(c *gin.Context) {
	chat.NewClientInit(c, h.gateway, uuid.NewString())
}
