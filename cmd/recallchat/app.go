package main

import (
	"fmt"

	"github.com/liliang-cn/recallchat/internal/config"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/llm"
	"github.com/liliang-cn/recallchat/internal/repository"
	"github.com/liliang-cn/recallchat/internal/search"
	"github.com/liliang-cn/recallchat/internal/service"
	"github.com/liliang-cn/recallchat/internal/status"
	"go.uber.org/zap"
)

// app is the fully wired service graph
type app struct {
	db        *repository.DB
	broker    *events.Broker
	generator *service.ResponseGenerator
	chat      *service.ChatService
	admin     *service.AdminService
	ingest    *service.IngestService
	readiness *service.ReadinessMonitor
	gate      *service.ProcessingGate
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	turns := repository.NewTurnRepository(db)

	provider, err := llm.NewProvider(llm.Config{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Timeout:      cfg.LLM.Timeout,
		SessionTurns: cfg.Chat.ConversationTurns,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	searcher := search.NewClient(search.Config{BaseURL: cfg.Search.BaseURL, Timeout: cfg.Search.Timeout})
	statusClient := status.NewClient(status.Config{BaseURL: cfg.Status.BaseURL, Timeout: cfg.Status.Timeout})
	broker := events.NewBroker()

	builder := service.NewContextBuilder(service.ContextBuilderOptions{
		MaxRecords:           cfg.Chat.MaxContextRecords,
		ExcerptChars:         cfg.Chat.ExcerptChars,
		ConversationTurns:    cfg.Chat.ConversationTurns,
		ConversationMaxChars: cfg.Chat.ConversationMaxChars,
	})

	var extractor service.KeywordExtractor = service.HeuristicExtractor{}
	if cfg.LLM.Extractor == "llm" {
		extractor = service.NewLLMExtractor(provider)
	}

	searchOpts := service.SearchOptions{Mode: cfg.Search.Mode, Limit: cfg.Search.Limit}
	classifier := service.NewIntentClassifier(extractor, builder, logger)
	analyzer := service.NewQualityAnalyzer(cfg.Chat.HighQualityThreshold)
	generator := service.NewResponseGenerator(provider, builder, logger)
	sessions := service.NewSessionStore(turns, searcher, searchOpts, logger)
	orchestrator := service.NewSearchOrchestrator(
		classifier, searcher, analyzer, builder, generator, sessions, broker, searchOpts, logger,
	)

	readiness := service.NewReadinessMonitor(statusClient, broker, service.ReadinessOptions{
		InitialDelay:         cfg.Readiness.InitialDelay,
		Interval:             cfg.Readiness.Interval,
		MaxAttempts:          cfg.Readiness.MaxAttempts,
		OptimisticReadyAfter: cfg.Readiness.OptimisticReadyAfter,
		WarmInterval:         cfg.Readiness.WarmInterval,
		WarmTimeout:          cfg.Readiness.WarmTimeout,
	}, logger)
	gate := service.NewProcessingGate(statusClient, broker, service.GateOptions{
		Interval:     cfg.Gate.Interval,
		SettleDelay:  cfg.Gate.SettleDelay,
		DisableInput: cfg.Gate.DisableInput,
	}, logger)

	chat := service.NewChatService(orchestrator, sessions, generator, gate, cfg.Chat.HistoryLimit, logger)
	gate.SetIdleHandler(chat)

	return &app{
		db:        db,
		broker:    broker,
		generator: generator,
		chat:      chat,
		admin:     service.NewAdminService(turns, chat),
		ingest:    service.NewIngestService(gate, readiness, logger),
		readiness: readiness,
		gate:      gate,
	}, nil
}

func (a *app) Close() {
	a.readiness.Stop()
	a.gate.Stop()
	a.db.Close()
}
