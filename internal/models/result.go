package models

// RefreshResult is returned verbatim to the caller of a refresh.
type RefreshResult struct {
	Updated        bool   `json:"updated"`
	NewRecordCount int    `json:"newRecordCount"`
	Error          string `json:"error,omitempty"`
	// Reason says why nothing was updated: "unchanged", "running", or "failed".
	Reason string `json:"reason,omitempty"`
}

// RebuildResult is the outcome of building and swapping in a new index generation.
type RebuildResult struct {
	RecordCount int    `json:"record_count"`
	Success     bool   `json:"success"`
	Generation  string `json:"generation,omitempty"`
	Error       error  `json:"-"`
}

// VerifyResult is the outcome of an index integrity check.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query      string    `json:"query"`
	Normalized string    `json:"normalized"`
	Found      bool      `json:"found"`
	Results    []*Record `json:"results"`
	QueryTime  int64     `json:"query_time_ms"`
}
