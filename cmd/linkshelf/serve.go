package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"linkshelf/internal/api"
	"linkshelf/internal/bot"
	"linkshelf/internal/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, and the Telegram bot when a token is configured",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Create context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("backend", cfg.Backend()).Info("Starting linkshelf...")

	svc, repo, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeRepo(repo)

	var wg sync.WaitGroup
	if cfg.TelegramBotToken != "" {
		botHandler, err := bot.NewHandler(cfg.TelegramBotToken, svc, log)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			botHandler.Start(ctx)
		}()
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	guest := domain.LocalUser
	guest.ID = cfg.LocalUserID
	if !cfg.AuthEnabled() {
		log.Warn("JWT_SECRET not set, every request runs as the local guest")
	}

	server := api.NewServer(svc, cfg.JWTSecret, guest, log)
	err = server.Run(ctx, cfg.HTTPAddr)

	// The server only returns early on a listen error; stop the bot too.
	stop()
	wg.Wait()

	if err != nil {
		return err
	}
	log.Info("linkshelf shut down gracefully.")
	return nil
}
