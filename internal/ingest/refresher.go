// Package ingest runs the refresh pipeline: settings, source, fingerprint gate,
// parser, index rebuild.
package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/fingerprint"
	"github.com/hyperjump/fsmcheck/internal/models"
	"github.com/hyperjump/fsmcheck/internal/parser"
	"github.com/hyperjump/fsmcheck/internal/settings"
	"github.com/hyperjump/fsmcheck/internal/source"
)

// Reasons reported in RefreshResult.Reason when nothing was updated.
const (
	ReasonUnchanged = "unchanged"
	ReasonRunning   = "running"
	ReasonFailed    = "failed"
)

// SourceReader fetches and decodes the configured source.
type SourceReader interface {
	Read(ctx context.Context, src models.SourceConfig) (*source.Content, error)
}

// Builder rebuilds and verifies the index.
type Builder interface {
	Rebuild(ctx context.Context, records []models.Record) models.RebuildResult
	Verify(ctx context.Context) models.VerifyResult
}

// Refresher runs at most one refresh at a time.
type Refresher struct {
	settings settings.Store
	reader   SourceReader
	index    Builder
	logger   *zap.Logger

	running sync.Mutex

	lastMu  sync.Mutex
	last    *models.RefreshResult
	lastRun time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// NewRefresher wires the pipeline.
func NewRefresher(st settings.Store, reader SourceReader, index Builder, opts ...Option) *Refresher {
	r := &Refresher{settings: st, reader: reader, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches the configured source and rebuilds the index if its content changed
// or the live index fails verification. A call made while another refresh is in
// progress returns immediately with Reason "running".
//
// Every failure is reported both in the result and as the returned error. The
// fingerprint is persisted only after a successful swap.
func (r *Refresher) Refresh(ctx context.Context) (*models.RefreshResult, error) {
	if !r.running.TryLock() {
		r.logger.Info("refresh already in progress")
		return &models.RefreshResult{Reason: ReasonRunning}, nil
	}
	defer r.running.Unlock()

	start := time.Now()
	res, err := r.refresh(ctx)
	if err != nil {
		r.logger.Error("refresh failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
	} else {
		r.logger.Info("refresh finished",
			zap.Bool("updated", res.Updated),
			zap.Int("records", res.NewRecordCount),
			zap.String("reason", res.Reason),
			zap.Duration("duration", time.Since(start)))
	}

	r.lastMu.Lock()
	snapshot := *res
	r.last = &snapshot
	r.lastRun = start
	r.lastMu.Unlock()
	return res, err
}

func (r *Refresher) refresh(ctx context.Context) (*models.RefreshResult, error) {
	verify := r.index.Verify(ctx)
	if !verify.Valid {
		r.logger.Warn("live index failed verification", zap.String("reason", verify.Reason))
	}
	fail := func(err error) (*models.RefreshResult, error) {
		if !verify.Valid {
			err = apperr.New(apperr.KindIndexIntegrityFailure, "refresh", err)
		}
		return &models.RefreshResult{Error: err.Error(), Reason: ReasonFailed}, err
	}

	st, err := r.settings.Load()
	if err != nil {
		return fail(err)
	}
	content, err := r.reader.Read(ctx, st.Source)
	if err != nil {
		return fail(err)
	}

	fresh := fingerprint.Compute(content.Raw)
	decision := fingerprint.Decide(fresh, st.Fingerprint, verify)
	r.logger.Info("fingerprint checked",
		zap.String("hash", fresh.Hash),
		zap.Bool("refresh", decision.Refresh),
		zap.String("reason", decision.Reason))
	if !decision.Refresh {
		return &models.RefreshResult{Reason: ReasonUnchanged}, nil
	}

	parsed, err := parser.Parse(st.Source.Kind, content.Text)
	if err != nil {
		return fail(err)
	}
	if n := len(parsed.Warnings); n > 0 {
		w := parsed.Warnings[0]
		r.logger.Warn("skipped malformed entries",
			zap.Int("count", n),
			zap.Int("first_position", w.Position),
			zap.String("first_reason", w.Reason),
			zap.String("first_excerpt", w.Excerpt))
	}

	built := r.index.Rebuild(ctx, parsed.Records)
	if built.Error != nil {
		return fail(built.Error)
	}

	fresh.RecordCount = built.RecordCount
	res := &models.RefreshResult{Updated: true, NewRecordCount: built.RecordCount}
	if err := r.settings.SaveFingerprint(st.Source, fresh); err != nil {
		// The new generation is live; the next refresh rebuilds it once more.
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

// Last returns the outcome and start time of the most recent refresh, or nil.
func (r *Refresher) Last() (*models.RefreshResult, time.Time) {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	if r.last == nil {
		return nil, time.Time{}
	}
	snapshot := *r.last
	return &snapshot, r.lastRun
}
