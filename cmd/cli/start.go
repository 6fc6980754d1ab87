package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiteflow/kiteflow/internal/initialization"
	"github.com/kiteflow/kiteflow/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the engine",
		Long:  `Start the engine service: the webhook server and the renewal scanner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}

	return cmd
}

func runStart() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("Starting engine service")

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deps, err := initialization.BuildEngineDependencies(ctx, initialization.EngineConfig{
		MongoURI:            config.MongoURI,
		MongoDatabase:       config.MongoDatabase,
		RedisAddr:           config.RedisAddr,
		RedisPassword:       config.RedisPassword,
		RedisDB:             config.RedisDB,
		GoogleClientID:      config.GoogleClientID,
		GoogleClientSecret:  config.GoogleClientSecret,
		DiscordBotToken:     config.DiscordBotToken,
		NotificationAddress: config.NotificationAddress,
		RenewalLead:         config.RenewalLead(),
		TokenSkew:           config.TokenSkew(),
		ScanSpec:            config.RenewalScanSpec,
		FanOutTTL:           config.FanOutTTL(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine dependencies")
	}

	if err := deps.Scanner.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start renewal scanner")
	}
	defer deps.Scanner.Stop()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		NotificationController: deps.NotificationController,
		WorkflowController:     deps.WorkflowController,
	})

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}()

	log.Info().Str("address", config.HTTPAddress).Msg("Engine listening")

	if err := app.Listen(config.HTTPAddress); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Engine service stopped")
	return nil
}
