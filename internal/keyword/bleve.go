// Package keyword provides Bleve implementation of KeywordIndex.
package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	normalizedAnalyzer = "normalized"
	textField          = "text"
	batchSize          = 1000
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
	path  string
}

var _ KeywordIndex = (*BleveIndex)(nil)

// newMapping indexes the text field with a unicode tokenizer and lower-casing only:
// no stop words and no stemming, so every token of a normalized query must be present
// verbatim in a matching record. Cyrillic and Latin text are treated alike.
func newMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(normalizedAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = normalizedAnalyzer
	textFieldMapping.Store = false
	textFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(textField, textFieldMapping)
	idFieldMapping := bleve.NewKeywordFieldMapping()
	idFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = normalizedAnalyzer
	return im, nil
}

// NewBleveIndex creates a fresh Bleve index at path. The path must not exist yet:
// every generation is built into its own directory.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("index path already exists: %s", path)
	}
	im, err := newMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index, path: path}, nil
}

// OpenBleveIndex opens an existing generation at path.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	index, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &BleveIndex{index: index, path: path}, nil
}

// Path returns the index directory.
func (b *BleveIndex) Path() string {
	return b.path
}

// IndexBatch indexes docs in batches of batchSize.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []Doc) error {
	batch := b.index.NewBatch()
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(docs[i].ID, docs[i]); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", docs[i].ID, err)
		}
		if batch.Size() >= batchSize {
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to apply batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to apply batch: %w", err)
		}
	}
	return nil
}

// Search runs query against the text field. Bare terms must all match; each
// double-quoted segment must match as a phrase. Hits come back in Bleve's score order.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	q := buildQuery(query)
	if q == nil {
		return nil, nil
	}
	size := limit
	if size <= 0 {
		count, err := b.index.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to get doc count: %w", err)
		}
		size = int(count)
		if size == 0 {
			return nil, nil
		}
	}
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildQuery turns a normalized query into a conjunction of an AND match over bare
// terms and one phrase query per quoted segment. An unterminated quote is ignored.
func buildQuery(normalized string) blevequery.Query {
	terms, phrases := splitQuoted(normalized)
	var parts []blevequery.Query
	if len(terms) > 0 {
		mq := bleve.NewMatchQuery(strings.Join(terms, " "))
		mq.SetField(textField)
		mq.SetOperator(blevequery.MatchQueryOperatorAnd)
		parts = append(parts, mq)
	}
	for _, p := range phrases {
		pq := bleve.NewMatchPhraseQuery(p)
		pq.SetField(textField)
		parts = append(parts, pq)
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return bleve.NewConjunctionQuery(parts...)
	}
}

// splitQuoted separates bare terms from double-quoted phrases.
func splitQuoted(s string) (terms []string, phrases []string) {
	segments := strings.Split(s, `"`)
	closed := len(segments)%2 == 1
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		inQuotes := i%2 == 1
		if inQuotes && (closed || i < len(segments)-1) {
			phrases = append(phrases, seg)
			continue
		}
		terms = append(terms, strings.Fields(seg)...)
	}
	return terms, phrases
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
