// Package models defines core data structures for records, sources, and refresh results.
package models

const (
	// DateUnknown is stored when a bulletin entry carries no decision date.
	DateUnknown = "unknown"
	// Unspecified replaces empty cells of a delimited source.
	Unspecified = "unspecified"
)

// Record is one entry of the restricted-content list. Records are immutable once parsed.
// ID is source-assigned and not guaranteed contiguous or unique within a batch.
type Record struct {
	ID   int64  `json:"id" db:"id"`
	Date string `json:"date" db:"date"`
	Text string `json:"text" db:"text"`
}
