// Package search translates user query strings into ranked, explainable
// results backed by the database's full-text index.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tessera-kb/tessera/internal/apperr"
	"github.com/tessera-kb/tessera/internal/database"
	"github.com/tessera-kb/tessera/internal/models"
)

// Config tunes search behavior.
type Config struct {
	// MaxResults caps the ranked result list.
	MaxResults int
	// TitleBoost multiplies the score of results whose title contains the
	// query text, and weights title: queries.
	TitleBoost float64
	// RecencyBoost scales the boost added for recently modified notes.
	RecencyBoost float64
	// MaxSuggestions caps the suggestion list.
	MaxSuggestions int
	// HistorySize bounds the remembered query history used for
	// suggestions.
	HistorySize int
}

// DefaultConfig returns the search defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults:     50,
		TitleBoost:     2.0,
		RecencyBoost:   0.1,
		MaxSuggestions: 5,
		HistorySize:    100,
	}
}

// MatchType classifies where inside a note a query matched.
type MatchType string

const (
	MatchTitle MatchType = "title"
	MatchBody  MatchType = "body"
	MatchTag   MatchType = "tag"
)

// Match locates one occurrence of the query inside a result.
type Match struct {
	Type MatchType `json:"type"`
	// Content is the matched line (Body) or the matched value (Title, Tag).
	Content string `json:"content"`
	// LineNumber is the 0-based body line of the match. Zero for Title
	// and Tag matches.
	LineNumber    int    `json:"line_number"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// Result is one ranked search hit.
type Result struct {
	Note        *models.Note `json:"note"`
	Score       float64      `json:"score"`
	Matches     []Match      `json:"matches"`
	Highlighted string       `json:"highlighted,omitempty"`
}

// SuggestionType classifies where a suggestion came from.
type SuggestionType string

const (
	SuggestionTag   SuggestionType = "tag"
	SuggestionQuery SuggestionType = "query"
)

// Suggestion is one completion proposal for a partial query.
type Suggestion struct {
	Text       string         `json:"text"`
	Type       SuggestionType `json:"type"`
	Confidence float64        `json:"confidence"`
}

// Engine executes queries against the database. It reads only; the
// indexer is the sole writer. Safe for concurrent use.
type Engine struct {
	db     database.Store
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	history []string

	// now is swappable in tests for deterministic recency scores.
	now func() time.Time
}

// New creates a search engine over db.
func New(db database.Store, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.TitleBoost <= 0 {
		cfg.TitleBoost = def.TitleBoost
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{db: db, cfg: cfg, logger: logger, now: time.Now}
}

// queryKind discriminates the flat query grammar.
type queryKind int

const (
	kindFullText queryKind = iota
	kindTag
	kindTitle
)

type criterion struct {
	kind   queryKind
	text   string
	weight float64
}

// parseQuery applies the flat grammar: "tag:x" restricts to an exact tag,
// "title:x" searches titles with the title boost as weight, anything else
// is full-text. Empty or whitespace-only queries are rejected.
func (e *Engine) parseQuery(query string) (criterion, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return criterion{}, apperr.Search("empty search query")
	}
	switch {
	case strings.HasPrefix(trimmed, "tag:"):
		return criterion{kind: kindTag, text: strings.TrimSpace(trimmed[len("tag:"):]), weight: 1.0}, nil
	case strings.HasPrefix(trimmed, "title:"):
		return criterion{kind: kindTitle, text: strings.TrimSpace(trimmed[len("title:"):]), weight: e.cfg.TitleBoost}, nil
	default:
		return criterion{kind: kindFullText, text: trimmed, weight: 1.0}, nil
	}
}

// Search parses query, executes it and returns results ranked by
// descending score, deduplicated by note id and truncated to MaxResults.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	c, err := e.parseQuery(query)
	if err != nil {
		return nil, err
	}
	e.recordQuery(query)

	var results []Result
	switch c.kind {
	case kindTag:
		results, err = e.SearchByTag(ctx, c.text)
	default:
		results, err = e.fullTextSearch(ctx, c.text)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Score *= c.weight
	}

	e.logger.Debug("search: completed", slog.String("query", query), slog.Int("results", len(results)))
	return e.rank(results), nil
}

// SearchByTag returns every note carrying the exact tag, each with a
// perfect score and a single Tag-type match.
func (e *Engine) SearchByTag(ctx context.Context, tag string) ([]Result, error) {
	notes, err := e.db.GetNotesByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(notes))
	for _, note := range notes {
		results = append(results, Result{
			Note:  note,
			Score: 1.0,
			Matches: []Match{{
				Type:      MatchTag,
				Content:   tag,
				EndOffset: len(tag),
			}},
		})
	}
	return results, nil
}

func (e *Engine) fullTextSearch(ctx context.Context, query string) ([]Result, error) {
	notes, err := e.db.SearchNotes(ctx, query, e.cfg.MaxResults, 0)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(notes))
	for _, note := range notes {
		score := 1.0

		daysOld := e.now().Sub(note.ModifiedAt).Hours() / 24
		if daysOld < 0 {
			daysOld = 0
		}
		score += e.cfg.RecencyBoost * (1.0 / (daysOld + 1.0))

		if strings.Contains(strings.ToLower(note.Title), strings.ToLower(query)) {
			score *= e.cfg.TitleBoost
		}

		results = append(results, Result{
			Note:        note,
			Score:       score,
			Matches:     findMatches(note, query),
			Highlighted: highlight(note.Body, query),
		})
	}
	return results, nil
}

// rank deduplicates by note id (first occurrence wins), sorts by
// descending score and truncates.
func (e *Engine) rank(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	deduped := results[:0]
	for _, r := range results {
		if _, ok := seen[r.Note.ID]; ok {
			continue
		}
		seen[r.Note.ID] = struct{}{}
		deduped = append(deduped, r)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})

	if len(deduped) > e.cfg.MaxResults {
		deduped = deduped[:e.cfg.MaxResults]
	}
	return deduped
}

// findMatches locates every occurrence of query in the note: the title,
// each matching body line (with one line of context either side) and
// matching tags. Matching is case-insensitive substring.
func findMatches(note *models.Note, query string) []Match {
	var matches []Match
	queryLower := strings.ToLower(query)

	if strings.Contains(strings.ToLower(note.Title), queryLower) {
		matches = append(matches, Match{
			Type:      MatchTitle,
			Content:   note.Title,
			EndOffset: len(note.Title),
		})
	}

	lines := strings.Split(note.Body, "\n")
	for i, line := range lines {
		start := strings.Index(strings.ToLower(line), queryLower)
		if start < 0 {
			continue
		}
		m := Match{
			Type:        MatchBody,
			Content:     line,
			LineNumber:  i,
			StartOffset: start,
			EndOffset:   start + len(query),
		}
		if i > 0 {
			m.ContextBefore = lines[i-1]
		}
		if i < len(lines)-1 {
			m.ContextAfter = lines[i+1]
		}
		matches = append(matches, m)
	}

	for _, tag := range note.Metadata.Tags {
		if strings.Contains(strings.ToLower(tag), queryLower) {
			matches = append(matches, Match{
				Type:      MatchTag,
				Content:   tag,
				EndOffset: len(tag),
			})
		}
	}

	return matches
}

// highlight wraps the first occurrence of query in content with ** **.
// Returns content unchanged when there is no occurrence.
func highlight(content, query string) string {
	start := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if start < 0 {
		return content
	}
	end := start + len(query)
	return content[:start] + "**" + content[start:end] + "**" + content[end:]
}

func (e *Engine) recordQuery(query string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, query)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
}

// GetSuggestions proposes completions for a partial query of at least two
// characters: existing tag names (prefixed "tag:") and prior queries that
// start with the partial, confidence-scored and truncated.
func (e *Engine) GetSuggestions(ctx context.Context, partial string) ([]Suggestion, error) {
	if len(partial) < 2 {
		return nil, nil
	}
	partialLower := strings.ToLower(partial)

	var suggestions []Suggestion

	tags, err := e.db.GetTagsWithCounts(ctx)
	if err != nil {
		return nil, err
	}
	for tag := range tags {
		if !strings.HasPrefix(strings.ToLower(tag), partialLower) {
			continue
		}
		confidence := 1.0
		if len(tag) != len(partial) {
			confidence = 0.8 - float64(len(tag)-len(partial))*0.1
			if confidence < 0.1 {
				confidence = 0.1
			}
		}
		suggestions = append(suggestions, Suggestion{
			Text:       "tag:" + tag,
			Type:       SuggestionTag,
			Confidence: confidence,
		})
	}

	e.mu.Lock()
	for _, q := range e.history {
		if q != partial && strings.HasPrefix(strings.ToLower(q), partialLower) {
			suggestions = append(suggestions, Suggestion{
				Text:       q,
				Type:       SuggestionQuery,
				Confidence: 0.7,
			})
		}
	}
	e.mu.Unlock()

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > e.cfg.MaxSuggestions {
		suggestions = suggestions[:e.cfg.MaxSuggestions]
	}
	return suggestions, nil
}
