// Package storage defines the persistence interface for record generations.
package storage

import (
	"context"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// Generation describes one persisted record table.
type Generation struct {
	ID          string
	Table       string
	RecordCount int
}

// Storage defines record-table persistence. Each generation lives in its own table;
// exactly one generation is active at a time.
type Storage interface {
	// Generation operations
	CreateGeneration(ctx context.Context, id string) (*Generation, error)
	InsertRecords(ctx context.Context, gen *Generation, records []models.Record) (int, error)
	ActivateGeneration(ctx context.Context, gen *Generation) error
	ActiveGeneration(ctx context.Context) (*Generation, error)
	DropGeneration(ctx context.Context, gen *Generation) error
	ListGenerationTables(ctx context.Context) ([]string, error)

	// Record operations
	GetRecords(ctx context.Context, gen *Generation, ids []int64) (map[int64]*models.Record, error)
	CountRecords(ctx context.Context, gen *Generation) (int, error)
	TableExists(ctx context.Context, table string) (bool, error)

	Close() error
}
