package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/fsmcheck/internal/apperr"
	"github.com/hyperjump/fsmcheck/internal/models"
)

// Delimiter separates columns of the delimited format.
const Delimiter = ';'

const bom = "\ufeff"

var (
	idLabels       = []string{"№", "id", "номер", "no"}
	materialLabels = []string{"материал", "material", "text", "наименование"}
	dateLabels     = []string{"дата", "date", "дата решения"}
)

// ParseDelimited parses semicolon-delimited rows. The header must have at least three
// columns labelled id, material and date in that order; otherwise the whole source is
// rejected with apperr.KindMalformedSource. Rows whose first column is not a
// non-negative integer are skipped with a warning.
func ParseDelimited(text string) (*Result, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, bom)))
	r.Comma = Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.MalformedSource("parse header", errors.New("source is empty"))
		}
		return nil, apperr.MalformedSource("parse header", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, apperr.MalformedSource("parse header", err)
	}

	res := &Result{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Warnings = append(res.Warnings, Warning{Position: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := r.FieldPos(0)
		rec, reason := parseRow(row)
		if reason != "" {
			res.Warnings = append(res.Warnings, Warning{Position: line, Reason: reason, Excerpt: excerpt(strings.Join(row, ";"))})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func validateHeader(header []string) error {
	if len(header) < 3 {
		return fmt.Errorf("expected at least 3 columns, got %d", len(header))
	}
	checks := []struct {
		name   string
		labels []string
	}{
		{"id", idLabels},
		{"material", materialLabels},
		{"date", dateLabels},
	}
	for i, c := range checks {
		if !hasLabel(header[i], c.labels) {
			return fmt.Errorf("column %d: %q is not a recognized %s label", i+1, header[i], c.name)
		}
	}
	return nil
}

func hasLabel(cell string, labels []string) bool {
	cell = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, bom)))
	for _, l := range labels {
		if cell == l {
			return true
		}
	}
	return false
}

func parseRow(row []string) (models.Record, string) {
	if len(row) == 0 {
		return models.Record{}, "empty row"
	}
	id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil || id < 0 {
		return models.Record{}, "id is not a non-negative integer"
	}
	return models.Record{
		ID:   id,
		Text: cellOrUnspecified(row, 1),
		Date: cellOrUnspecified(row, 2),
	}, ""
}

func cellOrUnspecified(row []string, i int) string {
	if i >= len(row) {
		return models.Unspecified
	}
	if v := strings.TrimSpace(row[i]); v != "" {
		return v
	}
	return models.Unspecified
}
