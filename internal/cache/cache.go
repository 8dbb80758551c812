package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching serialized analysis results
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// AnalysisKey derives the cache key for derived results (findings, score)
// of one document under one rule-set version. Both inputs participate:
// identical HTML analyzed under a different rule set is a different result.
func AnalysisKey(contentHash, ruleSetVersion string) string {
	sum := sha256.Sum256([]byte(contentHash + "|" + ruleSetVersion))
	return "seomancer:v1:" + hex.EncodeToString(sum[:])
}
