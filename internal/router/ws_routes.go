package router

import (
	"github.com/gin-gonic/gin"
)

func (rt *Router) registerWebSocketRoutes(r *gin.Engine) {
	// Anonymous upgrade; operator sockets authenticate in-band with a
	// counsellor-login event carrying the dashboard token.
	r.GET("/ws", rt.handlers.Ws.Connect)
}
