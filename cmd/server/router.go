package server

import (
	"github.com/gin-gonic/gin"
	"github.com/thereayou/classroom-rtc/internal/handlers"
	"github.com/thereayou/classroom-rtc/internal/middleware"
)

func APIEndpoints(r *gin.Engine, s *Server, eventH *handlers.EventHandler) {
	wsH := handlers.NewWebSocketHandler(s.Hub, eventH, s.wsOptions(), s.Config.AllowedOrigins)
	messageH := handlers.NewHTTPMessageHandler(s.Chat, s.Receipts)
	meetingH := handlers.NewMeetingHandler(s.Meetings)
	presenceH := handlers.NewPresenceHandler(s.Presence)
	authH := handlers.NewAuthHandler(s.Tokens, s.Hub)
	healthH := handlers.NewHealthHandler(s.DB, s.Hub.ConnectionCount)

	r.GET("/healthz", healthH.Health)
	r.GET("/ws", middleware.WSAuthMiddleware(s.Tokens), wsH.HandleWebSocket)

	authGroup := r.Group("/auth", middleware.AuthMiddleware(s.Tokens))
	{
		authGroup.POST("/logout", authH.Logout)
	}

	api := r.Group("/api/v1", middleware.AuthMiddleware(s.Tokens))
	{
		messages := api.Group("/messages")
		messages.POST("", messageH.SendMessage)
		messages.GET("/unread", messageH.UnreadCounts)
		messages.GET("/:id", messageH.GetConversation)
		messages.POST("/:id/seen", messageH.MarkSeen)
		messages.POST("/seen-all/:peerId", messageH.MarkAllSeen)

		meetings := api.Group("/meetings")
		meetings.POST("", meetingH.CreateMeeting)
		meetings.GET("/:id", meetingH.GetMeeting)
		meetings.POST("/:id/start", meetingH.StartMeeting)
		meetings.POST("/:id/end", meetingH.EndMeeting)
		meetings.POST("/:id/cancel", meetingH.CancelMeeting)

		presence := api.Group("/presence")
		presence.GET("", presenceH.ListOnline)
		presence.GET("/:userId", presenceH.GetStatus)
	}
}
