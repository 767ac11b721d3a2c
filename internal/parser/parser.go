// Package parser converts decoded source content into records.
package parser

import (
	"fmt"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// Warning describes an entry or row that was skipped.
type Warning struct {
	// Position is the 1-based chunk index (bulletin) or line number (delimited).
	Position int
	Reason   string
	// Excerpt is the start of the offending input.
	Excerpt string
}

// Result is the parsed form of a source. An empty Records slice is a valid result.
type Result struct {
	Records  []models.Record
	Warnings []Warning
}

// Parse selects the strategy for kind.
func Parse(kind models.SourceKind, text string) (*Result, error) {
	switch {
	case kind == models.SourceInlineText:
		return ParseBulletin(text), nil
	case kind.Delimited():
		return ParseDelimited(text)
	default:
		return nil, fmt.Errorf("no parser for source kind %q", kind)
	}
}

const excerptLen = 50

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}
