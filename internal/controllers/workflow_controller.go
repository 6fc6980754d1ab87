package controllers

import (
	"github.com/kiteflow/kiteflow/internal/domain"
	"github.com/kiteflow/kiteflow/internal/resolver"
	"github.com/kiteflow/kiteflow/internal/subscription"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// WorkflowController exposes the editor-facing lifecycle operations: fan-out
// computation, publish/unpublish and the Drive subscription lifecycle. Every
// response is a Result envelope so the editor renders failures uniformly.
type WorkflowController struct {
	publisher *resolver.PublishService
	manager   *subscription.Manager
}

type WorkflowControllerDependencies struct {
	PublishService      *resolver.PublishService
	SubscriptionManager *subscription.Manager
}

func NewWorkflowController(deps WorkflowControllerDependencies) *WorkflowController {
	return &WorkflowController{
		publisher: deps.PublishService,
		manager:   deps.SubscriptionManager,
	}
}

// ComputeFanOut resolves the workflow's dispatch list without publishing, so
// the editor can preview reachable destinations and unsaved nodes.
func (c *WorkflowController) ComputeFanOut(ctx *fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	resolution, err := c.publisher.ComputeFanOut(ctx.UserContext(), workflowID)
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	return ctx.JSON(domain.OK(resolution))
}

func (c *WorkflowController) Publish(ctx *fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	descriptors, err := c.publisher.Publish(ctx.UserContext(), workflowID)
	if err != nil {
		log.Warn().Err(err).Str("workflowID", workflowID).Msg("Publish rejected")
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	return ctx.JSON(domain.OK(descriptors))
}

func (c *WorkflowController) Unpublish(ctx *fiber.Ctx) error {
	workflowID := ctx.Params("workflowID")

	if err := c.publisher.Unpublish(ctx.UserContext(), workflowID); err != nil {
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	return ctx.JSON(domain.OK(nil))
}

type configureSubscriptionRequest struct {
	UserID     string                 `json:"userId"`
	WorkflowID string                 `json:"workflowId"`
	Credential domain.OAuthCredential `json:"credential"`
	Filter     domain.WatchFilter     `json:"filter"`
}

// ConfigureSubscription stores the watch settings and opens the channel.
func (c *WorkflowController) ConfigureSubscription(ctx *fiber.Ctx) error {
	nodeID := ctx.Params("nodeID")

	var req configureSubscriptionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	err := c.manager.Configure(ctx.UserContext(), subscription.ConfigureParams{
		NodeID:     nodeID,
		UserID:     req.UserID,
		WorkflowID: req.WorkflowID,
		Credential: req.Credential,
		Filter:     req.Filter,
	})
	if err != nil {
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	if err := c.manager.Start(ctx.UserContext(), nodeID); err != nil {
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	return ctx.JSON(domain.OK(nil))
}

// TeardownSubscription stops the watch channel. Stopping an already-stopped
// subscription succeeds.
func (c *WorkflowController) TeardownSubscription(ctx *fiber.Ctx) error {
	nodeID := ctx.Params("nodeID")

	if err := c.manager.Stop(ctx.UserContext(), nodeID); err != nil {
		return ctx.Status(statusFor(err)).JSON(domain.Fail(err))
	}

	return ctx.JSON(domain.OK(nil))
}

func statusFor(err error) int {
	switch {
	case domain.IsConfigurationError(err):
		return fiber.StatusUnprocessableEntity
	case domain.IsReauthRequired(err):
		return fiber.StatusUnauthorized
	case domain.IsQuotaExhausted(err):
		return fiber.StatusPaymentRequired
	default:
		return fiber.StatusInternalServerError
	}
}
