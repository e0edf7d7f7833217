package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/llm"
	"go.uber.org/zap"
)

// KeywordExtractor turns an utterance into a structured intent
type KeywordExtractor interface {
	Extract(ctx context.Context, utterance, conversation string) (domain.Intent, error)
}

// IntentClassifier decides between history search and plain chat
type IntentClassifier struct {
	extractor KeywordExtractor
	builder   *ContextBuilder
	logger    *zap.Logger
}

// NewIntentClassifier creates a new intent classifier
func NewIntentClassifier(extractor KeywordExtractor, builder *ContextBuilder, logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{extractor: extractor, builder: builder, logger: logger}
}

// Classify extracts the intent of the utterance. Recent turns give the
// extractor enough context to resolve follow-ups such as "open that one again".
func (c *IntentClassifier) Classify(ctx context.Context, utterance string, recent []domain.ChatTurn) (domain.Intent, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return domain.Intent{}, &domain.IntentError{Utterance: utterance, Err: domain.ErrInvalidRequest}
	}

	intent, err := c.extractor.Extract(ctx, utterance, c.builder.BuildConversation(recent))
	if err != nil {
		return domain.Intent{}, &domain.IntentError{Utterance: utterance, Err: err}
	}

	intent.Keywords = cleanKeywords(intent.Keywords)
	if intent.IsSearchQuery && len(intent.Keywords) == 0 {
		c.logger.Debug("search intent without keywords, treating as chat", zap.String("utterance", utterance))
		intent.IsSearchQuery = false
	}
	return intent, nil
}

func cleanKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// HeuristicExtractor flags search intent from recall cues and keeps the
// content words as keywords
type HeuristicExtractor struct{}

var recallCues = []string{
	"find", "search", "look up", "lookup", "show me", "pull up", "where was", "where is that",
	"visited", "visit", "history", "browsing", "bookmark", "that page", "that article",
	"that site", "that website", "that link", "that video", "that post", "i read", "i saw",
	"i was reading", "i looked at", "i opened", "remember", "recall",
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "to": true, "in": true,
	"on": true, "at": true, "for": true, "from": true, "with": true, "about": true, "by": true,
	"is": true, "was": true, "were": true, "be": true, "been": true, "are": true, "am": true,
	"i": true, "me": true, "my": true, "mine": true, "we": true, "our": true, "you": true, "your": true,
	"it": true, "its": true, "this": true, "that": true, "these": true, "those": true, "there": true,
	"what": true, "whats": true, "which": true, "who": true, "where": true, "when": true, "how": true,
	"s": true, "t": true, "do": true, "did": true, "does": true, "can": true, "could": true,
	"would": true, "should": true, "please": true, "some": true, "any": true, "one": true,
	"find": true, "search": true, "look": true, "up": true, "show": true,
	"visited": true, "visit": true, "history": true, "browsing": true, "page": true, "pages": true,
	"article": true, "site": true, "website": true, "link": true, "read": true, "saw": true,
	"seen": true, "reading": true, "looked": true, "opened": true, "remember": true, "recall": true,
	"again": true, "earlier": true, "recently": true, "ago": true, "last": true, "yesterday": true,
	"today": true, "week": true, "weeks": true, "month": true, "months": true, "year": true,
	"day": true, "days": true, "morning": true, "night": true,
}

func (HeuristicExtractor) Extract(ctx context.Context, utterance, conversation string) (domain.Intent, error) {
	tokens := tokenize(utterance)
	joined := " " + strings.Join(tokens, " ") + " "

	isSearch := false
	for _, cue := range recallCues {
		if strings.Contains(joined, " "+cue+" ") {
			isSearch = true
			break
		}
	}

	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stopwords[tok] || len(tok) < 2 {
			continue
		}
		keywords = append(keywords, tok)
	}
	// "pull up" is a cue, "pull request" is content
	if strings.Contains(joined, " pull up ") {
		keywords = removeWord(keywords, "pull")
	}

	return domain.Intent{IsSearchQuery: isSearch, Keywords: keywords}, nil
}

func tokenize(s string) []string {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func removeWord(words []string, word string) []string {
	out := words[:0]
	for _, w := range words {
		if w != word {
			out = append(out, w)
		}
	}
	return out
}

// LLMExtractor asks the generation backend to classify the utterance
type LLMExtractor struct {
	completer llm.Completer
}

// NewLLMExtractor creates a new extractor backed by completer
func NewLLMExtractor(completer llm.Completer) *LLMExtractor {
	return &LLMExtractor{completer: completer}
}

const intentPrompt = `You classify messages sent to a browsing-history assistant.
Decide whether the user wants to find pages from their own browsing history (search) or is just chatting.
Extract the search keywords: topic words, names, sites. Leave out filler and time words.
Reply with JSON only: {"is_search_query": true|false, "keywords": ["..."]}`

func (e *LLMExtractor) Extract(ctx context.Context, utterance, conversation string) (domain.Intent, error) {
	user := utterance
	if conversation != "" {
		user = "Recent conversation:\n" + conversation + "\n\nMessage: " + utterance
	}
	raw, err := e.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: intentPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return domain.Intent{}, fmt.Errorf("keyword extraction: %w", err)
	}
	return parseIntent(raw)
}

// parseIntent reads the JSON object out of a model reply, tolerating code fences and prose
func parseIntent(raw string) (domain.Intent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.Intent{}, errors.New("keyword extraction: no JSON object in reply")
	}
	var intent domain.Intent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("keyword extraction: %w", err)
	}
	return intent, nil
}
