package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linkshelf/internal/analysis"
	"linkshelf/internal/config"
	"linkshelf/internal/ingest"
	"linkshelf/internal/metadata"
	"linkshelf/internal/storage"
)

var (
	configPath string
	debug      bool

	cfg config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "linkshelf",
	Short:         "Personal link collection with AI-drafted summaries",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		log = newLogger(cfg)
		if debug {
			log.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs", "Directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	if strings.EqualFold(cfg.LogFormat, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		l.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

// newAnalyzer wires Gemini when a key is configured. Without one every
// analysis yields the setup-required record.
func newAnalyzer(ctx context.Context) *analysis.Analyzer {
	enricher := metadata.NewOEmbedClient(cfg.OEmbedEndpoint, &http.Client{Timeout: 10 * time.Second}, log)

	if !cfg.AnalysisEnabled() {
		log.Warn("GEMINI_API_KEY not set, links will be saved without analysis")
		return analysis.New(nil, log, analysis.WithEnricher(enricher))
	}

	gen, err := analysis.NewGeminiGenerator(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.WithError(err).Error("Failed to initialize Gemini client, analysis disabled")
		return analysis.New(nil, log, analysis.WithEnricher(enricher))
	}
	return analysis.New(gen, log, analysis.WithEnricher(enricher))
}

// openService opens the configured store and builds the ingestion service.
// The caller must close the returned repository.
func openService(ctx context.Context) (*ingest.Service, storage.Repository, error) {
	repo, err := storage.Open(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize link store: %w", err)
	}
	return ingest.NewService(newAnalyzer(ctx), repo, log), repo, nil
}

func closeRepo(repo storage.Repository) {
	log.Debug("Closing link store...")
	if err := repo.Close(); err != nil {
		log.WithError(err).Error("Error closing link store")
	}
}
