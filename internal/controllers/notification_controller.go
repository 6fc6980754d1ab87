package controllers

import (
	"github.com/kiteflow/kiteflow/internal/notification"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// NotificationController terminates the two inbound webhook surfaces: Drive
// push notifications and provider chat events. Both must answer quickly, so
// the handlers validate, process and ack without deferring work elsewhere.
type NotificationController struct {
	deltas *notification.DeltaProcessor
	chats  *notification.ChatProcessor
}

type NotificationControllerDependencies struct {
	DeltaProcessor *notification.DeltaProcessor
	ChatProcessor  *notification.ChatProcessor
}

func NewNotificationController(deps NotificationControllerDependencies) *NotificationController {
	return &NotificationController{
		deltas: deps.DeltaProcessor,
		chats:  deps.ChatProcessor,
	}
}

// HandleDriveNotification handles a Drive watch-channel push. The channel
// address carries node, user and workflow identity as query parameters; the
// channel and resource identity arrive in Google's headers.
func (c *NotificationController) HandleDriveNotification(ctx *fiber.Ctx) error {
	n := notification.DriveNotification{
		NodeID:     ctx.Query("nodeId"),
		UserID:     ctx.Query("userId"),
		WorkflowID: ctx.Query("workflowId"),
		ChannelID:  ctx.Get("X-Goog-Channel-ID"),
		ResourceID: ctx.Get("X-Goog-Resource-ID"),
	}

	if n.NodeID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing nodeId")
	}

	if err := c.deltas.Process(ctx.UserContext(), n); err != nil {
		log.Error().Err(err).Str("nodeID", n.NodeID).Msg("Failed to process drive notification")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to process notification")
	}

	return ctx.SendStatus(fiber.StatusOK)
}

// HandleChatEvent handles one provider chat event and fans it out to the
// published workflow listening on that channel.
func (c *NotificationController) HandleChatEvent(ctx *fiber.Ctx) error {
	var event notification.ChatEvent

	if err := ctx.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if event.ChannelID == "" || event.EventType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing channelId or eventType")
	}

	if err := c.chats.Process(ctx.UserContext(), event); err != nil {
		log.Error().Err(err).
			Str("channelID", event.ChannelID).
			Str("eventType", event.EventType).
			Msg("Failed to process chat event")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to process chat event")
	}

	return ctx.SendStatus(fiber.StatusOK)
}
