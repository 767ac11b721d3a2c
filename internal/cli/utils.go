// Package cli provides output helpers for the fsmcheck command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/fsmcheck/internal/models"
	"github.com/hyperjump/fsmcheck/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per match.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

const textPreviewLen = 200

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Date, utils.Truncate(r.Text, 80))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if !response.Found {
		fmt.Fprintf(w, "\nNo restricted materials match %q (%dms)\n", response.Normalized, response.QueryTime)
		return
	}
	fmt.Fprintf(w, "\nFound %d restricted material(s) matching %q in %dms\n\n",
		len(response.Results), response.Normalized, response.QueryTime)
	for _, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "No. %d | Date: %s\n", r.ID, r.Date)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Text, textPreviewLen))
	}
}

// WriteRefreshResult writes the outcome of a refresh.
func WriteRefreshResult(w io.Writer, res *models.RefreshResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	switch {
	case res.Updated:
		fmt.Fprintf(w, "Index updated: %d records\n", res.NewRecordCount)
	case res.Error != "":
		fmt.Fprintf(w, "Update failed: %s\n", res.Error)
	default:
		fmt.Fprintf(w, "Index not updated (%s)\n", res.Reason)
	}
	if res.Updated && res.Error != "" {
		fmt.Fprintf(w, "warning: %s\n", res.Error)
	}
	return nil
}

// StatusReport is the shape of GET /api/v1/status.
type StatusReport struct {
	Index       models.VerifyResult  `json:"index"`
	Generation  *GenerationInfo      `json:"generation,omitempty"`
	Source      *models.SourceConfig `json:"source,omitempty"`
	Fingerprint *models.Fingerprint  `json:"fingerprint,omitempty"`
	LastRefresh *LastRefresh         `json:"last_refresh,omitempty"`
	DiskUsage   *int64               `json:"disk_usage_bytes,omitempty"`
	Config      map[string]any       `json:"config,omitempty"`
}

// GenerationInfo identifies the live index generation.
type GenerationInfo struct {
	ID      string `json:"id"`
	Records int    `json:"records"`
}

// LastRefresh is the most recent refresh seen by the server.
type LastRefresh struct {
	At     time.Time             `json:"at"`
	Result *models.RefreshResult `json:"result"`
}

// WriteStatus writes a status report.
func WriteStatus(w io.Writer, s *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "index_valid:        %t\n", s.Index.Valid)
	fmt.Fprintf(w, "records:            %d\n", s.Index.Count)
	if s.Index.Reason != "" {
		fmt.Fprintf(w, "index_problem:      %s\n", s.Index.Reason)
	}
	if s.Generation != nil {
		fmt.Fprintf(w, "generation:         %s\n", s.Generation.ID)
	}
	if s.Source != nil {
		fmt.Fprintf(w, "source:             %s %s\n", s.Source.Kind, s.Source.Location)
	}
	if s.Fingerprint != nil && !s.Fingerprint.IsZero() {
		fmt.Fprintf(w, "fingerprint:        %s (%d records)\n", s.Fingerprint.Hash, s.Fingerprint.RecordCount)
	}
	if s.LastRefresh != nil && s.LastRefresh.Result != nil {
		r := s.LastRefresh.Result
		fmt.Fprintf(w, "last_refresh:       %s updated=%t %s\n",
			s.LastRefresh.At.Format(time.RFC3339), r.Updated, r.Reason)
	}
	if s.DiskUsage != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + index generations on disk\n", *s.DiskUsage)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
