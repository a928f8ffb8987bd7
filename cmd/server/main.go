package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/genai"

	"github.com/m2tx/function_calling/assets"
	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/config"
	"github.com/m2tx/function_calling/internal/docs"
	"github.com/m2tx/function_calling/internal/functions"
	"github.com/m2tx/function_calling/internal/provider/azureopenai"
	"github.com/m2tx/function_calling/internal/provider/gemini"
	"github.com/m2tx/function_calling/internal/provider/scripted"
	"github.com/m2tx/function_calling/internal/repository"
	"github.com/m2tx/function_calling/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	modelService, err := newModelService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	registry, templates, err := newFunctions(cfg, logger)
	if err != nil {
		return err
	}

	var synthesizer agent.Synthesizer = templates
	if cfg.Synthesis == config.SynthesisModel {
		synthesizer = agent.NewModelSynthesizer(modelService, systemInstruction(cfg))
	}

	opts := []agent.Option{
		agent.WithSystemInstruction(systemInstruction(cfg)),
		agent.WithAgentLogger(logger),
		agent.WithDispatcher(agent.NewDispatcher(registry,
			agent.WithLogger(logger),
			agent.WithFetchTimeout(cfg.FetchTimeout),
		)),
		agent.WithSynthesizer(synthesizer),
	}

	journal, closeJournal, err := newJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()
	if journal != nil {
		opts = append(opts, agent.WithRepository(journal))
	}

	a := agent.New(modelService, registry, opts...)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.New(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logger.Info("listening",
		"addr", srv.Addr,
		"provider", cfg.ModelProvider,
		"model", cfg.Model,
		"functions", registry.Len(),
		"journal", cfg.Journal,
	)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func systemInstruction(cfg *config.Config) string {
	if cfg.SystemInstruction != "" {
		return cfg.SystemInstruction
	}
	return assets.SystemInstruction
}

func newModelService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (agent.ModelService, error) {
	switch cfg.ModelProvider {
	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.New(client, cfg.Model, logger), nil

	case config.ProviderAzure:
		client, err := azureopenai.NewClient(cfg.AzureEndpoint, cfg.AzureAPIVersion, cfg.AzureAPIKey)
		if err != nil {
			return nil, err
		}
		return azureopenai.New(client, cfg.Model, logger), nil

	default:
		return scripted.New(scripted.WeatherRule(), scripted.DocsRule()), nil
	}
}

func newFunctions(cfg *config.Config, logger *slog.Logger) (*agent.Registry, *agent.TemplateSynthesizer, error) {
	var weather agent.Fetcher = functions.NewStaticWeather()
	if cfg.WeatherSource == config.WeatherWttr {
		weather = functions.NewHTTPWeather(cfg.WeatherBaseURL, nil)
	}

	index := docs.NewIndex(logger)
	if err := index.LoadDir(cfg.DocsDir); err != nil {
		return nil, nil, err
	}

	registry := agent.NewRegistry()
	if err := registry.Register(functions.CreateWeatherFunctionDeclaration(weather)); err != nil {
		return nil, nil, err
	}
	if err := registry.Register(functions.CreateDocsSearchFunctionDeclaration(functions.NewDocsSearch(index))); err != nil {
		return nil, nil, err
	}

	synthesizer := agent.NewTemplateSynthesizer()
	if err := synthesizer.AddTemplate(functions.WeatherFunctionName, functions.WeatherAnswerTemplate); err != nil {
		return nil, nil, err
	}

	return registry, synthesizer, nil
}

func newJournal(ctx context.Context, cfg *config.Config) (repository.DispatchRepository, func(), error) {
	noop := func() {}

	switch cfg.Journal {
	case config.JournalMemory:
		return repository.NewMemoryDispatchRepository(cfg.JournalCapacity), noop, nil

	case config.JournalMongo:
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, noop, fmt.Errorf("mongodb connect: %w", err)
		}
		closeFn := func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				slog.Warn("mongodb disconnect", "error", err)
			}
		}
		return repository.NewMongoDispatchRepository(mongoClient.Database(cfg.MongoDB), "dispatches"), closeFn, nil

	case config.JournalSQLite, config.JournalPostgres:
		repo, err := repository.OpenSQLDispatchRepository(cfg.Journal, cfg.JournalDSN)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := repo.Close(); err != nil {
				slog.Warn("journal close", "error", err)
			}
		}
		return repo, closeFn, nil

	default:
		return nil, noop, nil
	}
}
