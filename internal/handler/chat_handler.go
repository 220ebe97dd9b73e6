// Package handler exposes the HTTP surface: lead intake, chat history,
// chat closure, dashboard login, and the WebSocket upgrade.
package handler

import (
	"edulead_chat_server/internal/dto/request"
	"edulead_chat_server/internal/service/chatflow"
	"edulead_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves chat lifecycle endpoints.
type ChatHandler struct {
	flow *chatflow.Service
}

func NewChatHandler(flow *chatflow.Service) *ChatHandler {
	return &ChatHandler{flow: flow}
}

// InitChat is lead intake from the website widget.
// POST /chat/init
func (h *ChatHandler) InitChat(c *gin.Context) {
	var req request.InitChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.flow.Initiate(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// History returns a chat's messages in creation order.
// GET /chat/:chatId/history
func (h *ChatHandler) History(c *gin.Context) {
	chatId := c.Param("chatId")
	if chatId == "" {
		HandleError(c, errorx.ErrInvalidParam)
		return
	}
	data, err := h.flow.History(c.Request.Context(), chatId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// CloseChat ends a chat from either side.
// POST /chat/:chatId/close
func (h *ChatHandler) CloseChat(c *gin.Context) {
	chatId := c.Param("chatId")
	if chatId == "" {
		HandleError(c, errorx.ErrInvalidParam)
		return
	}
	var req request.CloseChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.flow.Close(c.Request.Context(), chatId, req); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// UnreadCount totals the authenticated counsellor's unread messages.
// GET /chat/unread-count
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userId := c.GetString("userId")
	if userId == "" {
		HandleError(c, errorx.New(errorx.CodeUnauthorized, "login required"))
		return
	}
	data, err := h.flow.UnreadCount(c.Request.Context(), userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}
