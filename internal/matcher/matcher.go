// Package matcher normalizes queries and runs them against the live index.
package matcher

import (
	"context"
	"time"

	"github.com/hyperjump/fsmcheck/internal/models"
	"go.uber.org/zap"
)

// Index is the read side of the index store.
type Index interface {
	// SearchNormalized runs an already-normalized query. limit <= 0 returns all matches.
	SearchNormalized(ctx context.Context, normalized string, limit int) ([]*models.Record, error)
}

// Matcher checks queries against the restricted-content index.
type Matcher struct {
	index  Index
	logger *zap.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithLogger sets a logger for match events.
func WithLogger(l *zap.Logger) MatcherOption {
	return func(m *Matcher) { m.logger = l }
}

// NewMatcher creates a Matcher over index.
func NewMatcher(index Index, opts ...MatcherOption) *Matcher {
	m := &Matcher{index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Search returns every record matching raw, ordered by the engine's relevance.
// A query that normalizes to nothing returns no records without touching the index.
func (m *Matcher) Search(ctx context.Context, raw string) ([]*models.Record, error) {
	normalized := Normalize(raw)
	if normalized == "" {
		return nil, nil
	}
	return m.search(ctx, normalized, 0)
}

// Check runs a search request and wraps the outcome in a SearchResponse.
func (m *Matcher) Check(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{Query: q.Query, Normalized: Normalize(q.Query), Results: []*models.Record{}}
	if resp.Normalized != "" {
		records, err := m.search(ctx, resp.Normalized, q.Limit)
		if err != nil {
			return nil, err
		}
		if records != nil {
			resp.Results = records
		}
	}
	resp.Found = len(resp.Results) > 0
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

func (m *Matcher) search(ctx context.Context, normalized string, limit int) ([]*models.Record, error) {
	records, err := m.index.SearchNormalized(ctx, normalized, limit)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		m.logger.Warn("restricted material matched",
			zap.String("query", normalized),
			zap.Int64("id", records[0].ID),
			zap.Int("matches", len(records)),
		)
	} else {
		m.logger.Info("query is clean", zap.String("query", normalized))
	}
	return records, nil
}
