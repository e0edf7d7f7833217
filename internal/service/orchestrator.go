package service

import (
	"context"
	"errors"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/search"
	"go.uber.org/zap"
)

// TurnResult is everything one chat turn produced. Error is set when the turn
// ended in an error reply; the reply text is then the user-facing message.
type TurnResult struct {
	UserTurn      domain.ChatTurn
	AssistantTurn domain.ChatTurn
	Intent        domain.Intent
	Records       []domain.SearchRecord
	Assessment    domain.QualityAssessment
	Briefing      string
	Error         error
}

// SearchOrchestrator runs one chat turn: classify, maybe search, grade,
// brief, generate, persist
type SearchOrchestrator struct {
	classifier *IntentClassifier
	searcher   search.Searcher
	analyzer   *QualityAnalyzer
	builder    *ContextBuilder
	generator  *ResponseGenerator
	sessions   *SessionStore
	broker     *events.Broker
	opts       SearchOptions
	logger     *zap.Logger

	now func() time.Time
}

// NewSearchOrchestrator creates a new search orchestrator
func NewSearchOrchestrator(
	classifier *IntentClassifier,
	searcher search.Searcher,
	analyzer *QualityAnalyzer,
	builder *ContextBuilder,
	generator *ResponseGenerator,
	sessions *SessionStore,
	broker *events.Broker,
	opts SearchOptions,
	logger *zap.Logger,
) *SearchOrchestrator {
	return &SearchOrchestrator{
		classifier: classifier,
		searcher:   searcher,
		analyzer:   analyzer,
		builder:    builder,
		generator:  generator,
		sessions:   sessions,
		broker:     broker,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleTurn runs the pipeline for one user message. A turn already in flight
// on the conversation makes this a no-op returning domain.ErrTurnInFlight.
func (o *SearchOrchestrator) HandleTurn(ctx context.Context, conv *Conversation, message string) (*TurnResult, error) {
	if !conv.tryBegin() {
		return nil, domain.ErrTurnInFlight
	}
	defer conv.end()

	result := &TurnResult{
		UserTurn: domain.ChatTurn{
			ThreadID:  conv.ThreadID,
			Role:      domain.RoleUser,
			Content:   message,
			CreatedAt: o.now().UTC(),
		},
	}
	log := o.logger.With(zap.String("thread_id", conv.ThreadID))

	intent, err := o.classifier.Classify(ctx, message, conv.History())
	if err != nil {
		log.Error("intent classification failed", zap.Error(err))
		return o.errorReply(conv, result, err, "Sorry, I couldn't understand that request. Please try rephrasing it."), nil
	}
	result.Intent = intent

	if intent.IsSearchQuery {
		result.Records = o.search(ctx, log, intent.Keywords)
	}
	result.Assessment = o.analyzer.Assess(result.Records)
	result.Briefing = o.builder.Build(result.Records, result.Assessment, intent.IsSearchQuery)

	log.Debug("turn classified",
		zap.Bool("search", intent.IsSearchQuery),
		zap.Strings("keywords", intent.Keywords),
		zap.Int("records", len(result.Records)),
		zap.String("quality", string(result.Assessment.Quality)),
		zap.Float64("first_score", result.Assessment.FirstScore),
	)

	answer, err := o.generator.Generate(ctx, conv, message, result.Briefing)
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		text := (&domain.GenerationError{Kind: domain.GenerationUnavailable}).UserMessage()
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			text = genErr.UserMessage()
		}
		return o.errorReply(conv, result, err, text), nil
	}

	result.AssistantTurn = domain.ChatTurn{
		ThreadID:  conv.ThreadID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		CreatedAt: o.now().UTC(),
	}
	if intent.IsSearchQuery {
		meta := &domain.SearchMetadata{
			IsSearchQuery: true,
			Keywords:      intent.Keywords,
			OriginalQuery: message,
		}
		result.AssistantTurn.Metadata = meta
		conv.setLastQuery(meta)
	}

	// storage failures never fail the turn; the reply is still returned
	if err := o.sessions.Append(ctx, conv, &result.UserTurn); err != nil {
		log.Warn("failed to persist user turn", zap.Error(err))
	}
	if err := o.sessions.Append(ctx, conv, &result.AssistantTurn); err != nil {
		log.Warn("failed to persist assistant turn", zap.Error(err))
	}

	return result, nil
}

func (o *SearchOrchestrator) search(ctx context.Context, log *zap.Logger, keywords []string) []domain.SearchRecord {
	records, err := o.searcher.Search(ctx, o.opts.request(keywords))
	if err != nil {
		log.Warn("history search failed, continuing without results",
			zap.Strings("keywords", keywords),
			zap.Error(err),
		)
		return nil
	}
	return records
}

func (o *SearchOrchestrator) errorReply(conv *Conversation, result *TurnResult, err error, text string) *TurnResult {
	result.Error = err
	result.AssistantTurn = domain.ChatTurn{
		ThreadID:  conv.ThreadID,
		Role:      domain.RoleAssistant,
		Content:   text,
		CreatedAt: o.now().UTC(),
	}
	return result
}

// RerunLastQuery silently re-issues the conversation's last history search so
// newly summarized pages show up. Nothing is generated or persisted.
func (o *SearchOrchestrator) RerunLastQuery(ctx context.Context, conv *Conversation) ([]domain.SearchRecord, bool) {
	meta := conv.LastQuery()
	if meta == nil || conv.IsGenerating() {
		return nil, false
	}

	log := o.logger.With(zap.String("thread_id", conv.ThreadID))
	records, err := o.searcher.Search(ctx, o.opts.request(meta.Keywords))
	if err != nil {
		log.Warn("silent search refresh failed", zap.Error(err))
		return nil, false
	}
	log.Debug("search results refreshed", zap.Int("records", len(records)))

	if o.broker != nil {
		o.broker.Publish(conv.ThreadID, events.TypeResultsRefreshed, map[string]any{
			"query":      meta.OriginalQuery,
			"keywords":   meta.Keywords,
			"links":      records,
			"assessment": o.analyzer.Assess(records),
		})
	}
	return records, true
}
