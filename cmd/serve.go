package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhirockzz/cosmosdb-go-sdk-helper/auth"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/urfave/cli/v2"

	"github.com/abhirockzz/ele-chat/assistant"
	"github.com/abhirockzz/ele-chat/assistant/local"
	assistantopenai "github.com/abhirockzz/ele-chat/assistant/openai"
	"github.com/abhirockzz/ele-chat/config"
	"github.com/abhirockzz/ele-chat/server"
	"github.com/abhirockzz/ele-chat/store"
)

// ServeCommand returns the CLI command that runs the chat web server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the chat web server",
		Action: Serve,
	}
}

// Serve is also the default action of the app.
func Serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
	ctx := logger.WithContext(c.Context)

	upstream, cleanup, err := newUpstream(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	poll := assistant.PollConfig{
		Interval:    cfg.Assistant.PollInterval,
		MaxInterval: cfg.Assistant.PollMaxInterval,
		Multiplier:  1.5,
		Timeout:     cfg.Assistant.PollTimeout,
	}
	app := server.New(server.NewOrchestrator(upstream, poll, cfg.Server.TurnTimeout))

	handler := app.Routes(logger, server.RouterConfig{
		StaticDir: cfg.Server.StaticDir,
		Limiter:   server.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("port", cfg.Server.Port).
		Str("backend", cfg.Assistant.Backend).
		Msg("web server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// writeTimeout leaves room for the slowest turn to still write its reply or timed_out status.
func writeTimeout(cfg *config.Config) time.Duration {
	return max(cfg.Server.TurnTimeout, cfg.Assistant.PollTimeout) + 15*time.Second
}

// newUpstream builds the assistant client for the configured backend. The returned cleanup
// releases whatever the backend holds.
func newUpstream(ctx context.Context, cfg *config.Config) (assistant.Client, func(), error) {
	logger := zerolog.Ctx(ctx)

	if cfg.Assistant.Backend == config.BackendOpenAI {
		if cfg.Assistant.APIKey == "" {
			logger.Warn().Msg("no assistant API key configured, every turn will fail as unavailable")
		}
		client, err := assistantopenai.New(assistantopenai.Config{
			APIKey:       cfg.Assistant.APIKey,
			AssistantID:  cfg.Assistant.AssistantID,
			BaseURL:      cfg.Assistant.BaseURL,
			Instructions: cfg.Assistant.Instructions,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}

	llm, err := newLLM(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	threads, closeStore, err := newThreadStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	backend := local.New(llm, threads,
		local.WithInstructions(cfg.Assistant.Instructions),
		local.WithRunTimeout(cfg.Assistant.PollTimeout),
	)
	return backend, func() {
		backend.Close()
		closeStore()
	}, nil
}

func newLLM(cfg *config.Config) (*openai.LLM, error) {
	// without a key langchaingo falls back to OPENAI_API_KEY
	opts := []openai.Option{openai.WithModel(cfg.LLM.Model)}
	if cfg.LLM.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.LLM.APIKey))
	}
	if cfg.LLM.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.Endpoint))
	}
	if cfg.LLM.APIType == "azure" {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			// an embedding model is not actually required but has been added because langchaingo requires it
			openai.WithEmbeddingModel("dummy_value"),
		)
	}
	return openai.New(opts...)
}

func newThreadStore(ctx context.Context, cfg *config.Config) (store.ThreadStore, func(), error) {
	logger := zerolog.Ctx(ctx)

	switch cfg.Store.Type {
	case config.StoreCosmosDB:
		client, err := auth.GetCosmosDBClient(cfg.CosmosDB.Endpoint, cfg.CosmosDB.Emulator, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cosmos db client: %w", err)
		}
		threads, err := store.NewCosmosStore(client, cfg.CosmosDB.Database, cfg.CosmosDB.Container, cfg.Store.TTL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.CosmosDB.Database).Str("container", cfg.CosmosDB.Container).Msg("using cosmos db thread store")
		return threads, func() {}, nil

	case config.StoreRedis:
		rdb, err := store.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using redis thread store")
		return store.NewRedisStore(rdb, cfg.Store.TTL), func() { rdb.Close() }, nil
	}

	threads := store.NewMemoryStore(cfg.Store.TTL)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := threads.Sweep(); n > 0 {
					logger.Debug().Int("threads", n).Msg("expired threads removed")
				}
			case <-stop:
				return
			}
		}
	}()
	return threads, func() { close(stop) }, nil
}
