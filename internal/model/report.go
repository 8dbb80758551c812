package model

import "time"

// Report represents one complete analysis of a page: score, findings and
// fetch metadata. The JSON field names form the external API contract and
// are stable across releases.
type Report struct {
	ID        string    `json:"id"`            // analysis id (uuid)
	URL       string    `json:"url,omitempty"` // source URL, empty for raw HTML input
	FetchedAt time.Time `json:"fetchedAt"`
	FetchMeta FetchMeta `json:"fetchMeta,omitzero"`

	Score Score `json:"report"` // score + findings + rule-set version

	FromCache bool `json:"fromCache,omitempty"` // derived results reused via content hash
}

// FetchMeta contains HTTP metadata from fetching the page
type FetchMeta struct {
	StatusCode   int    `json:"statusCode,omitempty"`
	ContentType  string `json:"contentType,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	ETag         string `json:"etag,omitempty"`
}
