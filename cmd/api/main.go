// Package main is the entry point for the portal API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helioshq/assistant-portal/internal/backend"
	"github.com/helioshq/assistant-portal/internal/config"
	"github.com/helioshq/assistant-portal/internal/directory"
	"github.com/helioshq/assistant-portal/internal/events"
	"github.com/helioshq/assistant-portal/internal/handler"
	"github.com/helioshq/assistant-portal/internal/middleware"
	"github.com/helioshq/assistant-portal/internal/profile"
	"github.com/helioshq/assistant-portal/internal/prompt"
	"github.com/helioshq/assistant-portal/internal/session"
	"github.com/helioshq/assistant-portal/internal/stream"
	"github.com/helioshq/assistant-portal/internal/thread"
	"github.com/helioshq/assistant-portal/pkg/logger"
	"github.com/helioshq/assistant-portal/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting portal API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "assistant-portal", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for the audit event stream
	var eventsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATSEnabled {
		eventsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer eventsClient.Close()

		publisher = events.NewPublisher(eventsClient, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
	}

	// Initialize streaming backend client
	backendClient, err := backend.NewClient(
		backend.Provider(cfg.DefaultProvider),
		backendAPIKey(cfg),
		cfg.ChatWebhookURL,
	)
	if err != nil {
		log.Error("failed to create backend client", zap.Error(err))
		os.Exit(1)
	}

	// Initialize core
	store := thread.NewStore(cfg.EventBufferSize, log)
	coordinator := stream.NewCoordinator(store, backendClient, publisher, log)
	directoryClient := directory.NewClient(cfg.DirectoryWebhookURL, cfg.DirectoryCacheTTL, log)
	promptClient := prompt.NewClient(cfg.PromptWebhookURL, log)
	profileStore := profile.NewStore()

	controller := session.NewController(store, coordinator, directoryClient, session.AttachmentLimits{
		MaxBytes:  cfg.AttachmentMaxBytes,
		MIMETypes: cfg.AttachmentMIMETypes,
		MaxStaged: cfg.AttachmentMaxStaged,
	}, log)

	// Forward store mutations to the audit stream
	if publisher != nil {
		storeEvents, unsubscribe := store.Subscribe()
		defer unsubscribe()
		go publisher.Run(ctx, storeEvents)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(eventsClient)
	threadHandler := handler.NewThreadHandler(store, coordinator, controller, log)
	sessionHandler := handler.NewSessionHandler(controller, log)
	streamHandler := handler.NewStreamHandler(store, coordinator, log)
	catalogHandler := handler.NewCatalogHandler(directoryClient, promptClient, log)
	profileHandler := handler.NewProfileHandler(profileStore)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Threads
		r.Route("/threads", func(r chi.Router) {
			r.Post("/", threadHandler.Create)
			r.Get("/", threadHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", threadHandler.Get)
				r.Delete("/", threadHandler.Delete)
				r.Put("/current", threadHandler.SetCurrent)
				r.Post("/clear", threadHandler.Clear)
				r.Post("/stop", threadHandler.Stop)

				r.Get("/messages", threadHandler.ListMessages)
				r.Get("/stream", streamHandler.Stream)
			})
		})

		// Composer session
		r.Route("/session", func(r chi.Router) {
			r.Post("/send", sessionHandler.Send)
			r.Post("/prefill", sessionHandler.Prefill)
			r.Post("/messages/{messageID}/edit", sessionHandler.Edit)
			r.Post("/threads/{id}/retry", sessionHandler.Retry)
			r.Get("/banner", sessionHandler.Banner)
			r.Delete("/banner", sessionHandler.DismissBanner)
		})

		// Staged attachments
		r.Route("/attachments", func(r chi.Router) {
			r.Post("/", sessionHandler.StageAttachment)
			r.Get("/", sessionHandler.ListAttachments)
			r.Delete("/{id}", sessionHandler.RemoveAttachment)
		})

		// Catalogs
		r.Get("/assistants", catalogHandler.ListAssistants)
		r.Get("/prompts", catalogHandler.ListPrompts)
		r.Get("/prompts/{id}", catalogHandler.GetPrompt)

		// Profile preferences
		r.Get("/profile/preferences", profileHandler.GetPreferences)
		r.Put("/profile/preferences", profileHandler.SetPreference)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func backendAPIKey(cfg *config.Config) string {
	switch backend.Provider(cfg.DefaultProvider) {
	case backend.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	default:
		return cfg.AnthropicAPIKey
	}
}
