// Package index owns the live record generation: a SQLite record table paired with a
// Bleve full-text index. Rebuilds populate a shadow generation and swap it in with a
// single pointer flip, so concurrent searches see either the old or the new generation.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/keyword"
	"github.com/hyperjump/fsmcheck/internal/matcher"
	"github.com/hyperjump/fsmcheck/internal/models"
	"github.com/hyperjump/fsmcheck/internal/storage"
)

const genDirPrefix = "gen-"

// Config locates the database and the directory holding per-generation Bleve indexes.
type Config struct {
	DatabasePath string
	IndexDir     string
}

// generation is one swappable unit. index is nil when the persisted active
// generation could not be opened; Verify then reports it invalid.
type generation struct {
	meta  *storage.Generation
	index keyword.KeywordIndex
}

// Store is the index builder and the read side used by the matcher.
type Store struct {
	cfg    Config
	db     storage.Storage
	lock   *dirLock
	logger *zap.Logger

	// buildMu serializes rebuilds; mu guards live and is held exclusively only for the swap.
	buildMu sync.Mutex
	mu      sync.RWMutex
	live    *generation
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for build and swap events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open takes ownership of cfg.IndexDir, opens the database and loads the active
// generation if there is one. Leftover shadow tables and directories from an
// interrupted rebuild are removed.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DatabasePath == "" || cfg.IndexDir == "" {
		return nil, fmt.Errorf("database path and index directory are required")
	}
	s := &Store{cfg: cfg, logger: zap.NewNop(), lock: newDirLock(cfg.IndexDir)}
	for _, opt := range opts {
		opt(s)
	}

	ok, err := s.lock.tryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, cfg.IndexDir)
	}

	db, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		_ = s.lock.unlock()
		return nil, err
	}
	s.db = db

	if err := s.load(ctx); err != nil {
		_ = db.Close()
		_ = s.lock.unlock()
		return nil, err
	}
	if err := s.cleanupOrphans(ctx); err != nil {
		s.logger.Warn("failed to clean up orphaned generations", zap.Error(err))
	}
	return s, nil
}

func (s *Store) genDir(id string) string {
	return filepath.Join(s.cfg.IndexDir, genDirPrefix+id)
}

func (s *Store) load(ctx context.Context) error {
	meta, err := s.db.ActiveGeneration(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active generation: %w", err)
	}
	if meta == nil {
		s.logger.Info("no index generation yet")
		return nil
	}
	gen := &generation{meta: meta}
	idx, err := keyword.OpenBleveIndex(s.genDir(meta.ID))
	if err != nil {
		s.logger.Warn("active generation index cannot be opened",
			zap.String("generation", meta.ID), zap.Error(err))
	} else {
		gen.index = idx
	}
	s.live = gen
	s.logger.Info("loaded index generation",
		zap.String("generation", meta.ID), zap.Int("records", meta.RecordCount))
	return nil
}

// cleanupOrphans drops every record table and generation directory that is not the live one.
func (s *Store) cleanupOrphans(ctx context.Context) error {
	var liveTable, liveDir string
	if s.live != nil {
		liveTable = s.live.meta.Table
		liveDir = genDirPrefix + s.live.meta.ID
	}

	tables, err := s.db.ListGenerationTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == liveTable {
			continue
		}
		if err := s.db.DropGeneration(ctx, &storage.Generation{Table: t}); err != nil {
			return err
		}
		s.logger.Info("dropped orphaned table", zap.String("table", t))
	}

	entries, err := os.ReadDir(s.cfg.IndexDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genDirPrefix) || e.Name() == liveDir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.IndexDir, e.Name())); err != nil {
			return err
		}
		s.logger.Info("removed orphaned index directory", zap.String("dir", e.Name()))
	}
	return nil
}

// Rebuild builds records into a new generation and swaps it in. An empty record set
// is refused when the live generation holds records. On any failure the live
// generation is untouched and the shadow is discarded.
func (s *Store) Rebuild(ctx context.Context, records []models.Record) models.RebuildResult {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	prior := s.liveCount()
	if len(records) == 0 && prior > 0 {
		err := apperr.New(apperr.KindSuspiciousEmptyResult, "rebuild",
			fmt.Errorf("zero records parsed while the live generation holds %d", prior))
		s.logger.Error("refusing to replace index with empty record set", zap.Int("live_records", prior))
		return models.RebuildResult{Error: err}
	}

	id := uuid.NewString()
	shadow, err := s.buildShadow(ctx, id, records)
	if err != nil {
		s.logger.Error("shadow build failed", zap.String("generation", id), zap.Error(err))
		return models.RebuildResult{Generation: id, Error: err}
	}

	if err := s.db.ActivateGeneration(ctx, shadow.meta); err != nil {
		s.discard(shadow)
		return models.RebuildResult{Generation: id, Error: fmt.Errorf("failed to activate generation: %w", err)}
	}

	s.mu.Lock()
	old := s.live
	s.live = shadow
	s.mu.Unlock()

	s.logger.Info("swapped in new index generation",
		zap.String("generation", id), zap.Int("records", shadow.meta.RecordCount))
	if old != nil {
		s.discard(old)
	}
	return models.RebuildResult{RecordCount: shadow.meta.RecordCount, Success: true, Generation: id}
}

func (s *Store) buildShadow(ctx context.Context, id string, records []models.Record) (*generation, error) {
	meta, err := s.db.CreateGeneration(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create shadow table: %w", err)
	}
	gen := &generation{meta: meta}

	count, err := s.db.InsertRecords(ctx, meta, records)
	if err != nil {
		s.discard(gen)
		return nil, fmt.Errorf("failed to store records: %w", err)
	}

	idx, err := keyword.NewBleveIndex(s.genDir(id))
	if err != nil {
		s.discard(gen)
		return nil, err
	}
	gen.index = idx

	docs := make([]keyword.Doc, len(records))
	for i, r := range records {
		docs[i] = keyword.Doc{ID: strconv.FormatInt(r.ID, 10), Text: matcher.Normalize(r.Text)}
	}
	if err := idx.IndexBatch(ctx, docs); err != nil {
		s.discard(gen)
		return nil, fmt.Errorf("failed to index records: %w", err)
	}

	indexed, err := idx.DocCount()
	if err != nil {
		s.discard(gen)
		return nil, err
	}
	if int(indexed) != count {
		s.discard(gen)
		return nil, apperr.New(apperr.KindIndexIntegrityFailure, "build shadow",
			fmt.Errorf("indexed %d documents for %d records", indexed, count))
	}
	return gen, nil
}

// discard closes and removes a generation that is not (or no longer) live.
func (s *Store) discard(gen *generation) {
	if gen.index != nil {
		if err := gen.index.Close(); err != nil {
			s.logger.Warn("failed to close index", zap.String("generation", gen.meta.ID), zap.Error(err))
		}
	}
	if err := os.RemoveAll(s.genDir(gen.meta.ID)); err != nil {
		s.logger.Warn("failed to remove index directory", zap.String("generation", gen.meta.ID), zap.Error(err))
	}
	if err := s.db.DropGeneration(context.Background(), gen.meta); err != nil {
		s.logger.Warn("failed to drop generation table", zap.String("generation", gen.meta.ID), zap.Error(err))
	}
}

func (s *Store) liveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return 0
	}
	return s.live.meta.RecordCount
}

// Verify checks that the live generation exists, holds at least one record, and that
// its full-text index covers every record.
func (s *Store) Verify(ctx context.Context) models.VerifyResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.live == nil {
		return models.VerifyResult{Reason: "no index generation"}
	}
	exists, err := s.db.TableExists(ctx, s.live.meta.Table)
	if err != nil {
		return models.VerifyResult{Reason: err.Error()}
	}
	if !exists {
		return models.VerifyResult{Reason: "record table missing"}
	}
	count, err := s.db.CountRecords(ctx, s.live.meta)
	if err != nil {
		return models.VerifyResult{Reason: err.Error()}
	}
	if count <= 0 {
		return models.VerifyResult{Reason: "record table is empty", Count: count}
	}
	if s.live.index == nil {
		return models.VerifyResult{Reason: "full-text index missing", Count: count}
	}
	indexed, err := s.live.index.DocCount()
	if err != nil {
		return models.VerifyResult{Reason: err.Error(), Count: count}
	}
	if int(indexed) != count {
		return models.VerifyResult{
			Reason: fmt.Sprintf("full-text index holds %d of %d records", indexed, count),
			Count:  count,
		}
	}
	return models.VerifyResult{Valid: true, Count: count}
}

// SearchNormalized runs an already-normalized query against the live generation and
// returns the matching records in relevance order. limit <= 0 returns all matches.
func (s *Store) SearchNormalized(ctx context.Context, normalized string, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.live == nil || s.live.index == nil {
		return nil, apperr.New(apperr.KindIndexUnavailable, "search", errors.New("index not yet available"))
	}
	hits, err := s.live.index.Search(ctx, normalized, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*models.Record{}, nil
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", h.ID, err)
		}
		ids = append(ids, id)
	}
	byID, err := s.db.GetRecords(ctx, s.live.meta, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Generation returns a copy of the live generation's metadata, or nil.
func (s *Store) Generation() *storage.Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return nil
	}
	g := *s.live.meta
	return &g
}

// DiskUsage reports the size of the database and index directory.
func (s *Store) DiskUsage() (*storage.Usage, error) {
	return storage.DiskUsage(s.cfg.DatabasePath, s.cfg.IndexDir)
}

// Close releases the live index, the database and the directory lock.
func (s *Store) Close() error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.live != nil && s.live.index != nil {
		errs = append(errs, s.live.index.Close())
	}
	s.live = nil
	errs = append(errs, s.db.Close(), s.lock.unlock())
	return errors.Join(errs...)
}
