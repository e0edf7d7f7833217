package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/liliang-cn/recallchat/internal/domain"
)

const (
	// NoHistoryMatch is the whole briefing when a search found nothing
	NoHistoryMatch = "NO_HISTORY_MATCH: No pages in the user's browsing history matched this search."
	// LowConfidencePrefix opens a briefing whose best match scored below the high threshold
	LowConfidencePrefix = "LOW_CONFIDENCE: These are the closest pages in the user's browsing history, " +
		"but none is a strong match. Say that they may not be what the user is looking for."

	DefaultMaxContextRecords    = 3
	DefaultExcerptChars         = 300
	DefaultConversationTurns    = 10
	DefaultConversationMaxChars = 2000
)

// ContextBuilder renders the bounded briefing given to the generator
type ContextBuilder struct {
	MaxRecords           int
	ExcerptChars         int
	ConversationTurns    int
	ConversationMaxChars int

	now func() time.Time
}

// ContextBuilderOptions bounds the briefing and conversation window; zero fields take the defaults
type ContextBuilderOptions struct {
	MaxRecords           int
	ExcerptChars         int
	ConversationTurns    int
	ConversationMaxChars int
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(opts ContextBuilderOptions) *ContextBuilder {
	b := &ContextBuilder{
		MaxRecords:           opts.MaxRecords,
		ExcerptChars:         opts.ExcerptChars,
		ConversationTurns:    opts.ConversationTurns,
		ConversationMaxChars: opts.ConversationMaxChars,
		now:                  time.Now,
	}
	if b.MaxRecords <= 0 || b.MaxRecords > DefaultMaxContextRecords {
		b.MaxRecords = DefaultMaxContextRecords
	}
	if b.ExcerptChars <= 0 {
		b.ExcerptChars = DefaultExcerptChars
	}
	if b.ConversationTurns <= 0 {
		b.ConversationTurns = DefaultConversationTurns
	}
	if b.ConversationMaxChars <= 0 {
		b.ConversationMaxChars = DefaultConversationMaxChars
	}
	return b
}

// Build renders the search briefing. It is empty for chat turns; callers must
// leave empty briefings out of anything they join.
func (b *ContextBuilder) Build(records []domain.SearchRecord, assessment domain.QualityAssessment, isSearch bool) string {
	if !isSearch {
		return ""
	}
	if len(records) == 0 || assessment.Quality == domain.QualityNone {
		return NoHistoryMatch
	}

	if len(records) > b.MaxRecords {
		records = records[:b.MaxRecords]
	}

	var sb strings.Builder
	low := assessment.Quality == domain.QualityLow
	if low {
		sb.WriteString(LowConfidencePrefix)
		sb.WriteString("\n\n")
	}
	for i, record := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		confidence := ""
		switch {
		case low:
			confidence = "low"
		case i == 0:
			confidence = "high"
		}
		b.writeRecord(&sb, i+1, record, confidence)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *ContextBuilder) writeRecord(sb *strings.Builder, n int, r domain.SearchRecord, confidence string) {
	fmt.Fprintf(sb, "## %d. %s\n", n, r.Title)
	if confidence != "" {
		fmt.Fprintf(sb, "Confidence: %s confidence match\n", confidence)
	}
	if r.Domain != "" {
		fmt.Fprintf(sb, "Website: %s\n", r.Domain)
	}
	fmt.Fprintf(sb, "URL: %s\n", r.URL)
	fmt.Fprintf(sb, "Visits: %s\n", visitLabel(r.VisitCount))
	fmt.Fprintf(sb, "Last visited: %s\n", RelativeTime(r.LastVisitAt, b.now()))
	if excerpt := truncateRunes(strings.TrimSpace(r.Excerpt()), b.ExcerptChars); excerpt != "" {
		fmt.Fprintf(sb, "Content: %s\n", excerpt)
	}
}

func visitLabel(count int) string {
	if count <= 1 {
		return "1 visit"
	}
	return fmt.Sprintf("%d visits", count)
}

// RelativeTime renders how long ago t was, bucketed to the largest sensible unit
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 7*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d < 30*24*time.Hour:
		return plural(int(d/(7*24*time.Hour)), "week")
	case d < 365*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	default:
		return plural(int(d/(365*24*time.Hour)), "year")
	}
}

func plural(n int, unit string) string {
	if n <= 0 && unit == "minute" {
		return "just now"
	}
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// ConversationWindow picks the latest turns that fit both the turn count and
// the character budget, oldest first
func (b *ContextBuilder) ConversationWindow(turns []domain.ChatTurn) []domain.ChatTurn {
	if len(turns) > b.ConversationTurns {
		turns = turns[len(turns)-b.ConversationTurns:]
	}

	total := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(conversationLine(turns[i])) + 1
		if total+n > b.ConversationMaxChars {
			break
		}
		total += n
		start = i
	}
	return turns[start:]
}

// BuildConversation renders the window as "User:"/"Assistant:" lines. Lines are
// never cut; the newest lines win when the budget runs out.
func (b *ContextBuilder) BuildConversation(turns []domain.ChatTurn) string {
	window := b.ConversationWindow(turns)
	lines := make([]string, len(window))
	for i, turn := range window {
		lines[i] = conversationLine(turn)
	}
	return strings.Join(lines, "\n")
}

func conversationLine(turn domain.ChatTurn) string {
	speaker := "User"
	if turn.Role == domain.RoleAssistant {
		speaker = "Assistant"
	}
	return speaker + ": " + strings.TrimSpace(turn.Content)
}
