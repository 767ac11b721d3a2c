// Package fingerprint detects whether a source changed since the last successful rebuild.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperjump/fsmcheck/internal/models"
)

// Compute returns the SHA-256 digest of raw. RecordCount is left zero; it is filled
// in once the rebuild that uses this content succeeds.
func Compute(raw []byte) models.Fingerprint {
	sum := sha256.Sum256(raw)
	return models.Fingerprint{Hash: hex.EncodeToString(sum[:])}
}

// Decision explains the outcome of ShouldRefresh.
type Decision struct {
	Refresh bool
	Reason  string
}

// Decide reports whether a rebuild is needed. The rebuild is skipped only when the
// fresh digest equals the stored one and the live index passes its integrity check
// with the record count recorded alongside the stored digest.
func Decide(fresh, stored models.Fingerprint, verify models.VerifyResult) Decision {
	switch {
	case stored.IsZero():
		return Decision{Refresh: true, Reason: "no stored fingerprint"}
	case fresh.Hash != stored.Hash:
		return Decision{Refresh: true, Reason: "content changed"}
	case !verify.Valid:
		return Decision{Refresh: true, Reason: "index integrity check failed: " + verify.Reason}
	case stored.RecordCount != verify.Count:
		return Decision{Refresh: true, Reason: "index record count differs from fingerprint"}
	default:
		return Decision{Refresh: false, Reason: "unchanged"}
	}
}

// ShouldRefresh is Decide without the reason.
func ShouldRefresh(fresh, stored models.Fingerprint, verify models.VerifyResult) bool {
	return Decide(fresh, stored, verify).Refresh
}
