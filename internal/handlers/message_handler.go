package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/httpx"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
	"github.com/520Girl/socket-chat/internal/service"
	"github.com/520Girl/socket-chat/internal/validation"
)

type MessageHandler struct {
	messageService *service.MessageService
	historyService *service.HistoryService
	unreadService  *service.UnreadService
	deleteService  *service.DeleteService
}

func NewMessageHandler(
	messageService *service.MessageService,
	historyService *service.HistoryService,
	unreadService *service.UnreadService,
	deleteService *service.DeleteService,
) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		historyService: historyService,
		unreadService:  unreadService,
		deleteService:  deleteService,
	}
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	if input.Type == "" || input.Type == models.TextMessage {
		input.Content = validation.TrimAndLimit(input.Content, validation.MaxMessageLength())
		if input.Content == "" {
			return httpx.BadRequest(c, "missing_content", "Content is required")
		}
	}

	message, err := h.messageService.Send(userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidConversation):
			return httpx.BadRequest(c, "invalid_conversation", "Exactly one of recipient_id or group_id is required")
		case errors.Is(err, service.ErrPermissionDenied):
			return httpx.Forbidden(c, "not_a_member", "You are not a member of this group")
		default:
			return httpx.Internal(c, "send_message_failed")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *MessageHandler) GetHistory(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	filter := repository.ConversationFilter{ViewerID: userID}
	if v := c.Query("counterpart_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return httpx.BadRequest(c, "invalid_counterpart", "Invalid counterpart_id")
		}
		filter.CounterpartID = uint(id)
	}
	if v := c.Query("group_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return httpx.BadRequest(c, "invalid_group", "Invalid group_id")
		}
		filter.GroupID = uint(id)
	}
	if (filter.CounterpartID == 0) == (filter.GroupID == 0) {
		return httpx.BadRequest(c, "invalid_conversation", "Exactly one of counterpart_id or group_id is required")
	}

	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", service.DefaultPageSize)

	result, err := h.historyService.GetHistory(filter, page, size)
	if err != nil {
		return httpx.Internal(c, "fetch_history_failed")
	}
	return c.JSON(result)
}

func (h *MessageHandler) GetUnread(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	entries, err := h.unreadService.Read(userID)
	if err != nil {
		return httpx.Internal(c, "fetch_unread_failed")
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *MessageHandler) MarkConversationRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	counterpartID, err := strconv.ParseUint(c.Params("counterpart_id"), 10, 32)
	if err != nil {
		return httpx.BadRequest(c, "invalid_counterpart", "Invalid counterpart id")
	}
	scope := cache.ScopeUser
	if c.Query("scope") == string(cache.ScopeGroup) {
		scope = cache.ScopeGroup
	}

	if err := h.messageService.MarkRead(userID, uint(counterpartID), scope); err != nil {
		return httpx.Internal(c, "mark_read_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	messageID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return httpx.BadRequest(c, "invalid_message", "Invalid message id")
	}

	if err := h.deleteService.Delete(uint(messageID), userID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return httpx.NotFound(c, "message_not_found", "Message not found")
		case errors.Is(err, service.ErrPermissionDenied):
			return httpx.Forbidden(c, "delete_not_allowed", "You cannot delete this message")
		default:
			return httpx.Internal(c, "delete_message_failed")
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessageHandler) RestoreMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	messageID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return httpx.BadRequest(c, "invalid_message", "Invalid message id")
	}

	if err := h.deleteService.Restore(uint(messageID), userID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return httpx.NotFound(c, "message_not_found", "Message not found")
		case errors.Is(err, service.ErrNotDeleted):
			return httpx.BadRequest(c, "message_not_deleted", "Message is not deleted")
		case errors.Is(err, service.ErrPermissionDenied):
			return httpx.Forbidden(c, "restore_not_allowed", "Only admins can restore messages")
		default:
			return httpx.Internal(c, "restore_message_failed")
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}
