package models

import "fmt"

// SourceKind selects the transport and parser for a source.
type SourceKind string

const (
	// SourceInlineText is the bulletin-text file on local disk.
	SourceInlineText SourceKind = "txt"
	// SourceLocalDelimited is a semicolon-delimited file on local disk.
	SourceLocalDelimited SourceKind = "local_csv"
	// SourceRemoteDelimited is a semicolon-delimited file fetched over HTTP.
	SourceRemoteDelimited SourceKind = "remote_csv"
)

// Valid reports whether k is one of the known kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceInlineText, SourceLocalDelimited, SourceRemoteDelimited:
		return true
	}
	return false
}

// Local reports whether the source is read from the local filesystem.
func (k SourceKind) Local() bool {
	return k == SourceInlineText || k == SourceLocalDelimited
}

// Delimited reports whether the source uses the delimited (CSV-like) format.
func (k SourceKind) Delimited() bool {
	return k == SourceLocalDelimited || k == SourceRemoteDelimited
}

// SourceConfig identifies where records come from. It is never mutated mid-ingestion.
type SourceConfig struct {
	Kind     SourceKind `json:"kind" yaml:"kind"`
	Location string     `json:"location" yaml:"location"`
}

// Validate returns an error if the kind is unknown or the location is empty.
func (c SourceConfig) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}
	if c.Location == "" {
		return fmt.Errorf("source location cannot be empty")
	}
	return nil
}

// Fingerprint is the content digest of the last successfully indexed source,
// paired with the number of records that generation held.
type Fingerprint struct {
	Hash        string `json:"hash" yaml:"hash"`
	RecordCount int    `json:"record_count" yaml:"record_count"`
}

// IsZero reports whether no fingerprint has been recorded.
func (f Fingerprint) IsZero() bool {
	return f.Hash == ""
}

// Settings is the persisted source configuration plus last fingerprint.
type Settings struct {
	Source      SourceConfig `json:"source" yaml:"source"`
	Fingerprint Fingerprint  `json:"fingerprint" yaml:"fingerprint"`
}
