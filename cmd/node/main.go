package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veylan/synapnode/internal/admission"
	"github.com/veylan/synapnode/internal/config"
	"github.com/veylan/synapnode/internal/dispatch"
	"github.com/veylan/synapnode/internal/embedding"
	"github.com/veylan/synapnode/internal/handlers"
	"github.com/veylan/synapnode/internal/server"
	"github.com/veylan/synapnode/pkg/Logger"
	"github.com/veylan/synapnode/pkg/provider"
	"github.com/veylan/synapnode/pkg/provider/anthropic"
	"github.com/veylan/synapnode/pkg/provider/bedrock"
	"github.com/veylan/synapnode/pkg/provider/gemini"
	"github.com/veylan/synapnode/pkg/provider/groq"
	"github.com/veylan/synapnode/pkg/provider/ollama"
	"github.com/veylan/synapnode/pkg/provider/openai"
)

// Entry point for the serving node. Loads configuration, assembles the
// admission gate and the provider registry, and serves until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	logger.Info("logger initialized")

	oracle := buildOracle(cfg, logger)
	ctrl := admission.NewController(oracle, admission.Policy{
		WindowMinutes:     cfg.Admission.WindowMinutes,
		MaxRequests:       cfg.Admission.MaxRequests,
		AllowUnregistered: cfg.Admission.AllowUnregistered,
		MinStake: map[admission.RequestKind]float64{
			admission.KindIsAlive:    cfg.Admission.Stake.IsAlive,
			admission.KindCompletion: cfg.Admission.Stake.Completion,
			admission.KindImage:      cfg.Admission.Stake.Image,
			admission.KindEmbedding:  cfg.Admission.Stake.Embedding,
		},
	}, logger.Named("admission"))

	registry, openaiAdapter := buildRegistry(cfg, logger)
	logger.Infof("registered providers: %v", registry.Names())

	dispatcher := dispatch.New(registry, dispatch.Config{
		FlushSize:       cfg.Dispatch.FlushSize,
		ProviderTimeout: cfg.Dispatch.ProviderTimeout(),
	}, logger.Named("dispatch"))

	var embedder provider.Embedder
	var images provider.ImageGenerator
	if openaiAdapter != nil {
		embedder = openaiAdapter
		images = openaiAdapter
	}
	batcher := embedding.NewBatcher(embedder, cfg.Embedding.BatchSize, logger.Named("embedding"))

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	h := handlers.NewNodeHandler(ctrl, dispatcher, batcher, images, logger.Named("handlers"))
	server.InitializeRoutes(router, h, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("serving on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server exiting: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	logger.Info("node stopped")
}

func buildOracle(cfg *config.Settings, logger *Logger.Logger) admission.StakeOracle {
	if cfg.Redis.Addr != "" {
		logger.Infof("using redis stake oracle at %s", cfg.Redis.Addr)
		return admission.NewRedisOracle(cfg.Redis.Addr, cfg.Redis.Pass)
	}
	logger.Warn("no redis configured, using empty static stake oracle")
	return admission.NewStaticOracle()
}

// buildRegistry assembles the adapters that have credentials configured. The
// OpenAI adapter is returned separately because it also serves embedding and
// image calls.
func buildRegistry(cfg *config.Settings, logger *Logger.Logger) (*provider.Registry, *openai.Adapter) {
	registry := provider.NewRegistry()
	keys := cfg.Providers

	var openaiAdapter *openai.Adapter
	if keys.OpenAIAPIKey != "" {
		openaiAdapter = openai.New(keys.OpenAIAPIKey)
		registry.Register(openaiAdapter)
	}
	if keys.AnthropicAPIKey != "" {
		registry.Register(anthropic.New(keys.AnthropicAPIKey))
	}
	if keys.GeminiAPIKey != "" {
		a, err := gemini.New(context.Background(), keys.GeminiAPIKey)
		if err != nil {
			logger.Errorf("gemini adapter unavailable: %v", err)
		} else {
			registry.Register(a)
		}
	}
	if keys.GroqAPIKey != "" {
		registry.Register(groq.New(keys.GroqAPIKey, keys.GroqBaseURL))
	}
	if keys.AWSAccessKey != "" && keys.AWSSecretKey != "" {
		a, err := bedrock.New(context.Background(), keys.AWSRegion, keys.AWSAccessKey, keys.AWSSecretKey)
		if err != nil {
			logger.Errorf("bedrock adapter unavailable: %v", err)
		} else {
			registry.Register(a)
		}
	}
	if keys.OllamaHost != "" {
		a, err := ollama.New(keys.OllamaHost)
		if err != nil {
			logger.Errorf("ollama adapter unavailable: %v", err)
		} else {
			registry.Register(a)
		}
	}
	return registry, openaiAdapter
}
