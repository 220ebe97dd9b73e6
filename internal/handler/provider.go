package handler

import (
	dao "edulead_chat_server/internal/dao/mysql/repository"
	"edulead_chat_server/internal/service/chat"
	"edulead_chat_server/internal/service/chatflow"
)

// Handlers aggregates every handler; the router depends on this.
type Handlers struct {
	Chat *ChatHandler
	Auth *AuthHandler
	Ws   *WsHandler
}

func NewHandlers(flow *chatflow.Service, repos *dao.Repositories, gateway *chat.Gateway) *Handlers {
	return &Handlers{
		Chat: NewChatHandler(flow),
		Auth: NewAuthHandler(repos.Counsellor),
		Ws:   NewWsHandler(gateway),
	}
}
