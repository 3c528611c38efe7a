package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/520Girl/socket-chat/internal/httpx"
	"github.com/520Girl/socket-chat/internal/service"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
}

func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// GetOnlineUsers lists everyone currently marked online.
func (h *PresenceHandler) GetOnlineUsers(c *fiber.Ctx) error {
	if _, err := httpx.LocalUint(c, "userID"); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	users, err := h.presenceService.OnlineUsers()
	if err != nil {
		return httpx.Internal(c, "fetch_online_users_failed")
	}
	return c.JSON(fiber.Map{
		"users": users,
		"count": len(users),
	})
}

// GetUserStatus reports live presence for one user from the ephemeral key.
func (h *PresenceHandler) GetUserStatus(c *fiber.Ctx) error {
	if _, err := httpx.LocalUint(c, "userID"); err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	targetID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return httpx.BadRequest(c, "invalid_user", "Invalid user id")
	}

	online, err := h.presenceService.IsOnline(uint(targetID))
	if err != nil {
		return httpx.Internal(c, "fetch_status_failed")
	}
	return c.JSON(fiber.Map{
		"user_id": uint(targetID),
		"online":  online,
	})
}
