package initialization

import (
	"context"
	"time"

	"github.com/kiteflow/kiteflow/internal/controllers"
	"github.com/kiteflow/kiteflow/internal/credits"
	"github.com/kiteflow/kiteflow/internal/dispatch"
	"github.com/kiteflow/kiteflow/internal/notification"
	"github.com/kiteflow/kiteflow/internal/resolver"
	"github.com/kiteflow/kiteflow/internal/scheduler"
	"github.com/kiteflow/kiteflow/internal/storage/mongo"
	"github.com/kiteflow/kiteflow/internal/storage/rediscache"
	"github.com/kiteflow/kiteflow/internal/subscription"

	"github.com/rs/zerolog/log"
)

// EngineConfig carries everything the container needs to assemble the engine.
type EngineConfig struct {
	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GoogleClientID     string
	GoogleClientSecret string
	DiscordBotToken    string

	// NotificationAddress is the public HTTPS address Drive pushes to.
	NotificationAddress string

	RenewalLead time.Duration
	TokenSkew   time.Duration
	ScanSpec    string
	FanOutTTL   time.Duration
}

// EngineDependencies is the assembled object graph handed to the CLI.
type EngineDependencies struct {
	NotificationController *controllers.NotificationController
	WorkflowController     *controllers.WorkflowController
	Scanner                *scheduler.Scanner
}

// BuildEngineDependencies wires stores, services and controllers. The
// OnExhausted callback closes the loop between the credit gate and the
// subscription manager without a package cycle.
func BuildEngineDependencies(ctx context.Context, config EngineConfig) (*EngineDependencies, error) {
	log.Info().Msg("Building engine dependencies")

	store, err := mongo.NewStore(ctx, mongo.StoreDependencies{
		URI:          config.MongoURI,
		DatabaseName: config.MongoDatabase,
	})
	if err != nil {
		return nil, err
	}

	cache, err := rediscache.NewCache(ctx, rediscache.CacheDependencies{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
		TTL:      config.FanOutTTL,
	})
	if err != nil {
		return nil, err
	}

	discordSender, err := dispatch.NewDiscordSender(dispatch.DiscordSenderDependencies{
		BotToken: config.DiscordBotToken,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherDependencies{
		DiscordSender: discordSender,
		SlackSender:   dispatch.NewSlackSender(),
		NotionSender:  dispatch.NewNotionSender(),
	})

	graphResolver := resolver.NewResolver(resolver.ResolverDependencies{
		NodeStore: store,
	})

	refresher := subscription.NewTokenRefresher(subscription.TokenRefresherDependencies{
		ClientID:        config.GoogleClientID,
		ClientSecret:    config.GoogleClientSecret,
		CredentialStore: store,
		Skew:            config.TokenSkew,
	})

	driveAPI := subscription.NewGoogleDriveAPI()

	manager := subscription.NewManager(subscription.ManagerDependencies{
		SubscriptionStore:   store,
		WorkflowStore:       store,
		TokenRefresher:      refresher,
		DriveAPI:            driveAPI,
		RenewalJobStore:     store,
		AuditStore:          store,
		NotificationAddress: config.NotificationAddress,
		RenewalLead:         config.RenewalLead,
	})

	publishService := resolver.NewPublishService(resolver.PublishServiceDependencies{
		WorkflowStore:       store,
		NodeStore:           store,
		Resolver:            graphResolver,
		FanOutCache:         cache,
		SubscriptionStarter: manager,
	})

	gate := credits.NewGate(credits.GateDependencies{
		CreditStore: store,
		AuditStore:  store,
		OnExhausted: func(userID, workflowID string) {
			log.Warn().
				Str("userID", userID).
				Str("workflowID", workflowID).
				Msg("Account out of credits, subscriptions torn down")
		},
	})

	deltaProcessor := notification.NewDeltaProcessor(notification.DeltaProcessorDependencies{
		SubscriptionStore: store,
		WorkflowStore:     store,
		Manager:           manager,
		DriveAPI:          driveAPI,
		Gate:              gate,
		Dispatcher:        dispatcher,
	})

	chatProcessor := notification.NewChatProcessor(notification.ChatProcessorDependencies{
		NodeStore:     store,
		WorkflowStore: store,
		FanOutCache:   cache,
		Resolver:      graphResolver,
		Gate:          gate,
		Dispatcher:    dispatcher,
	})

	scanner := scheduler.NewScanner(scheduler.ScannerDependencies{
		RenewalJobStore: store,
		Renewer:         manager,
		ScanSpec:        config.ScanSpec,
	})

	return &EngineDependencies{
		NotificationController: controllers.NewNotificationController(controllers.NotificationControllerDependencies{
			DeltaProcessor: deltaProcessor,
			ChatProcessor:  chatProcessor,
		}),
		WorkflowController: controllers.NewWorkflowController(controllers.WorkflowControllerDependencies{
			PublishService:      publishService,
			SubscriptionManager: manager,
		}),
		Scanner: scanner,
	}, nil
}
