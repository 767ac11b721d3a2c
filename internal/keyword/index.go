// Package keyword provides full-text indexing and matching of normalized record text.
package keyword

import (
	"context"
)

// KeywordIndex defines full-text operations over one index generation.
type KeywordIndex interface {
	// IndexBatch indexes docs in one batch. A later doc with the same ID replaces an earlier one.
	IndexBatch(ctx context.Context, docs []Doc) error
	// Search runs a normalized query. limit <= 0 returns every match.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// Doc is the indexed form of a record: its ID and normalized text.
type Doc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
