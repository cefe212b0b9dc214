package spider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/dreamerjackson/leadcrawler/extract"
)

type EnrichState string

const (
	Undetailed   EnrichState = "undetailed"
	Enriched     EnrichState = "enriched"
	EnrichFailed EnrichState = "enrich-failed"
)

const (
	SourceURLField = "source_url"
	pageURLKey     = "_page_url"
	hashKeyPrefix  = "sha256:"
)

// Record is one discovered entity. Fields is owned by discovery runs and is
// last-writer-wins; Detail and the enrichment state are written only by
// enrichment.
type Record struct {
	ID          int64             `json:"id"`
	TargetID    int64             `json:"target_id"`
	Key         string            `json:"key"`
	SourceURL   string            `json:"source_url,omitempty"`
	Fields      map[string]string `json:"fields"`
	Detail      map[string]string `json:"detail,omitempty"`
	RawPayload  map[string]string `json:"raw_payload,omitempty"`
	PayloadHash string            `json:"payload_hash"`
	EnrichState EnrichState       `json:"enrich_state"`
	EnrichError string            `json:"enrich_error,omitempty"`
	EnrichedAt  *time.Time        `json:"enriched_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewRecord builds a record from one extracted item. The source_url field is
// made absolute against pageURL; without one the record is keyed by the hash
// of its fields. Aliased fields are canonicalized after hashing.
func NewRecord(targetID int64, pageURL string, fields map[string]string) *Record {
	fs := make(map[string]string, len(fields))
	for k, v := range fields {
		fs[k] = strings.TrimSpace(v)
	}

	var source string
	if raw := fs[SourceURLField]; raw != "" {
		source = extract.ResolveURL(pageURL, raw)
		fs[SourceURLField] = source
	}

	raw := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		raw[k] = v
	}
	raw[pageURLKey] = pageURL

	r := &Record{
		TargetID:    targetID,
		SourceURL:   source,
		Fields:      Canonicalize(fs),
		RawPayload:  raw,
		PayloadHash: PayloadHash(fs),
		EnrichState: Undetailed,
	}
	r.Key = source
	if r.Key == "" {
		r.Key = hashKeyPrefix + r.PayloadHash
	}

	return r
}

// PayloadHash is the hex sha256 of the canonical JSON encoding of payload.
// encoding/json sorts map keys, which makes the encoding canonical.
func PayloadHash(payload map[string]string) string {
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Merged overlays Detail onto Fields wherever Fields is blank.
func (r *Record) Merged() map[string]string {
	out := make(map[string]string, len(r.Fields)+len(r.Detail))
	for k, v := range r.Fields {
		out[k] = v
	}
	for k, v := range r.Detail {
		if strings.TrimSpace(out[k]) == "" {
			out[k] = v
		}
	}
	return out
}

// MergeDetail adds non-empty extracted values whose merged value is still
// blank, after canonicalizing them. It returns the number of fields added.
func (r *Record) MergeDetail(extracted map[string]string) int {
	extracted = Canonicalize(extracted)
	merged := r.Merged()
	if r.Detail == nil {
		r.Detail = make(map[string]string)
	}

	n := 0
	for k, v := range extracted {
		v = strings.TrimSpace(v)
		if v == "" || strings.TrimSpace(merged[k]) != "" {
			continue
		}
		r.Detail[k] = v
		n++
	}
	return n
}
