package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PatchStatus tracks a patch through validation
type PatchStatus string

const (
	PatchPending  PatchStatus = "pending"
	PatchValid    PatchStatus = "valid"
	PatchRejected PatchStatus = "rejected"
)

// Patch is a proposed replacement for one span of the original document.
type Patch struct {
	Span        Span        `json:"position"`        // target range in the original source
	Replacement string      `json:"replacement"`     // generated markup
	RuleID      string      `json:"ruleId"`          // originating finding's rule
	Fingerprint string      `json:"fingerprint"`     // dedup/cache key
	Status      PatchStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"` // set when Status is rejected
}

// PatchSet is an ordered set of patches intended for one application pass.
// Overlap and validity are enforced by the applier, not here: a rejected or
// overlapping member fails the whole application.
type PatchSet struct {
	Patches []Patch `json:"patches"`
}

// Fingerprint derives the deduplication key for a patch-generation request:
// document content hash + target span + rule id + rule-set version.
// Identical inputs always hash to the same key, so concurrent requests can
// share one generation. The content hash keeps requests from different
// documents apart even when their findings sit at the same byte offsets.
func Fingerprint(contentHash string, span Span, ruleID, ruleSetVersion string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%d:%s:%s", contentHash, span.Start, span.End, ruleID, ruleSetVersion))
	return hex.EncodeToString(sum[:])
}
