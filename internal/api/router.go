package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatwire/internal/auth"
	"github.com/lalith-99/chatwire/internal/middleware"
)

type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Chats         *ChatHandler
	Membership    *MembershipHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Calls         *CallHandler
}

// RegisterRoutes mounts the /v1 REST surface. Everything except signup and
// login sits behind the bearer-token middleware.
func RegisterRoutes(r gin.IRouter, verifier *auth.Verifier, h Handlers) {
	v1 := r.Group("/v1")

	v1.POST("/auth/signup", h.Auth.Signup)
	v1.POST("/auth/login", h.Auth.Login)

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(verifier))

	protected.GET("/users/me", h.Users.GetMe)
	protected.PUT("/users/me/notifications", h.Users.SetNotifications)
	protected.GET("/users/:id", h.Users.Get)
	protected.POST("/users/:id/block", h.Membership.Block)
	protected.DELETE("/users/:id/block", h.Membership.Unblock)
	protected.POST("/devices", h.Users.RegisterDevice)

	protected.GET("/chats", h.Chats.List)
	protected.POST("/chats/private", h.Chats.CreatePrivate)
	protected.POST("/chats/groups", h.Chats.CreateGroup)
	protected.GET("/chats/:id/members", h.Chats.Members)
	protected.POST("/chats/:id/members", h.Membership.AddMembers)
	protected.DELETE("/chats/:id/members/:userId", h.Membership.RemoveMember)
	protected.POST("/chats/:id/leave", h.Membership.Leave)
	protected.POST("/chats/:id/mute", h.Membership.Mute)

	protected.GET("/chats/:id/messages", h.Messages.List)
	protected.POST("/chats/:id/messages", h.Messages.Create)
	protected.POST("/chats/:id/files", h.Messages.Upload)
	protected.POST("/chats/:id/read", h.Messages.MarkRead)
	protected.PATCH("/messages/:id", h.Messages.Edit)
	protected.DELETE("/messages/:id", h.Messages.DeleteForEveryone)
	protected.POST("/messages/:id/hide", h.Messages.DeleteForMe)
	protected.GET("/messages/:id/file", h.Messages.FileURL)

	protected.GET("/notifications", h.Notifications.List)
	protected.POST("/notifications/:id/read", h.Notifications.MarkRead)

	protected.GET("/calls", h.Calls.History)
}
