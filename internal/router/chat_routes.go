package router

import (
	"edulead_chat_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

func (rt *Router) registerAuthRoutes(r *gin.Engine) {
	r.POST("/auth/login", rt.handlers.Auth.Login)
}

func (rt *Router) registerChatRoutes(r *gin.Engine) {
	// Intake is public: the widget has no credentials.
	r.POST("/chat/init", rt.handlers.Chat.InitChat)

	// Dashboard endpoints require a counsellor token.
	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.JWTAuth())
	{
		chatGroup.GET("/unread-count", rt.handlers.Chat.UnreadCount)
		chatGroup.GET("/:chatId/history", rt.handlers.Chat.History)
		chatGroup.POST("/:chatId/close", rt.handlers.Chat.CloseChat)
	}
}
