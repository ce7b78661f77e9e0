package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/handlers"
	"chatrelay/internal/logger"
	"chatrelay/internal/router"
	"chatrelay/internal/services"
	"chatrelay/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	// ──── Step 2: Initialize Logger ────
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Logger initialization failed: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("env", cfg.Env).Msg("🚀 Starting Chat Relay...")

	// ──── Step 3: Initialize Upstream Provider ────
	var provider services.Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		provider = services.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Temperature, cfg.FrequencyPenalty)
	case config.ProviderGemini:
		gemini, err := services.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.Model, cfg.Temperature)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Gemini client initialization failed")
		}
		defer gemini.Close()
		provider = gemini
	case config.ProviderSimulated:
		provider = services.NewSimulatedProvider()
	}
	log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("✓ Upstream provider initialized")

	// ──── Step 4: Initialize Relay and Handlers ────
	relay := services.NewRelayService(provider, cfg.SystemPrompt, cfg.UpstreamTimeout, log)
	chatHandler := handlers.NewChatHandler(relay, cfg.Streaming, log)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(relay, log)
	log.Info().Msg("✓ WebSocket hub started")

	// ──── Step 6: Start HTTP Server ────
	r := router.New(log, chatHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streamed replies may run for the whole upstream budget.
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		wsHub.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("chat", fmt.Sprintf("http://localhost:%s/chat", cfg.Port)).
		Str("ws", fmt.Sprintf("ws://localhost:%s/chat/ws", cfg.Port)).
		Bool("streaming", cfg.Streaming).
		Msgf("✓ Chat Relay ready on http://localhost:%s", cfg.Port)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
