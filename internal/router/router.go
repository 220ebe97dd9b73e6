// Package router registers the HTTP routes.
package router

import (
	"edulead_chat_server/internal/handler"

	"github.com/gin-gonic/gin"
)

// Router binds the handler aggregate to the gin engine.
type Router struct {
	handlers *handler.Handlers
}

func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes wires every route group.
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	rt.registerAuthRoutes(r)
	rt.registerChatRoutes(r)
	rt.registerWebSocketRoutes(r)
}
