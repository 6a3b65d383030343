// Command standby runs the away-assistant as a websocket chat service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"

	"github.com/standbybot/standby"
	"github.com/standbybot/standby/config"
	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/logging"
	"github.com/standbybot/standby/memory/qdrant"
	"github.com/standbybot/standby/model"
	"github.com/standbybot/standby/model/anthropic"
	"github.com/standbybot/standby/model/openai"
	"github.com/standbybot/standby/transport/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	m := newModel(cfg.Model)
	logger.Info("model backend ready", "provider", m.Info().Provider, "model", m.Info().Name)

	var retriever core.Retriever
	if cfg.Retrieval.Enabled {
		embedder := newEmbedder(cfg.Model)
		store, err := qdrant.New(qdrant.Config{
			Host:       cfg.Retrieval.QdrantHost,
			Port:       cfg.Retrieval.QdrantPort,
			Collection: cfg.Retrieval.Collection,
		}, embedder)
		if err != nil {
			log.Fatalf("failed to connect to qdrant: %v", err)
		}
		retriever = store
		logger.Info("retrieval enabled", "collection", cfg.Retrieval.Collection)
	} else {
		logger.Info("retrieval disabled")
	}

	transcript := ws.NewTranscript()

	assistant := standby.New(m, func(o *standby.Options) {
		o.FlowConfig.InitialPromptDelay = cfg.Flow.InitialPromptDelay
		o.FlowConfig.InactivityTimeout = cfg.Flow.InactivityTimeout
		o.FlowConfig.AutoEndTimeout = cfg.Flow.AutoEndTimeout
		o.FlowConfig.SilentPeriod = cfg.Flow.SilentPeriod
		o.FlowConfig.OwnerName = cfg.Flow.OwnerName
		o.Retriever = retriever
		o.History = transcript
		o.SimilarityThreshold = cfg.Retrieval.SimilarityThreshold
		o.AllowedUsers = cfg.Flow.AllowedUsers
		o.IgnoredUsers = cfg.Flow.IgnoredUsers
		o.IgnoredChats = cfg.Flow.IgnoredChats
		o.Logger = logger
	})

	server := ws.NewServer(assistant, transcript, func(o *ws.Options) {
		o.OperatorID = cfg.Flow.OperatorID
		o.Logger = logger
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("standby assistant listening", "addr", cfg.Server.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func newModel(cfg config.ModelConfig) model.Model {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
		})
	default:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
		})
	}
}

func newEmbedder(cfg config.ModelConfig) model.Embedder {
	return openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		if cfg.EmbeddingModel != "" {
			o.Model = cfg.EmbeddingModel
		}
		o.BaseURL = cfg.BaseURL
		o.APIKey = cfg.APIKey
	})
}
