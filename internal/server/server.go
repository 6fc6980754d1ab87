package server

import (
	"time"

	"github.com/kiteflow/kiteflow/internal/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

type HTTPServerDependencies struct {
	NotificationController *controllers.NotificationController
	WorkflowController     *controllers.WorkflowController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "kiteflow-engine",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "kiteflow-engine",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Post("/notifications/drive", deps.NotificationController.HandleDriveNotification)
	router.Post("/events/chat", deps.NotificationController.HandleChatEvent)

	workflows := router.Group("/workflows/:workflowID")
	workflows.Post("/fan-out", deps.WorkflowController.ComputeFanOut)
	workflows.Post("/publish", deps.WorkflowController.Publish)
	workflows.Post("/unpublish", deps.WorkflowController.Unpublish)

	subscriptions := router.Group("/subscriptions/:nodeID")
	subscriptions.Post("/", deps.WorkflowController.ConfigureSubscription)
	subscriptions.Delete("/", deps.WorkflowController.TeardownSubscription)

	return router
}
