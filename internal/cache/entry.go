package cache

import (
	"encoding/json"
	"time"
)

// Entry represents one cached external artifact as stored in every tier.
// The same shape serializes to the Redis value and the durable store row.
type Entry struct {
	Key              string          `json:"cache_key"`
	DataType         DataType        `json:"data_type"`
	Payload          json.RawMessage `json:"payload"`
	ContentHash      string          `json:"content_hash"`
	TTLSeconds       int64           `json:"ttl_seconds"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
	LastAccessed     time.Time       `json:"last_accessed"`
	AccessCount      int64           `json:"access_count"`
	Valid            bool            `json:"is_valid"`
	ErrorCount       int64           `json:"error_count"`
	LastError        string          `json:"last_error,omitempty"`
	SubscriptionTier Tier            `json:"subscription_tier"`
	Source           string          `json:"source"`
	SizeBytes        int64           `json:"size_bytes"`
}

// TTL returns the entry's time-to-live as a duration.
func (e *Entry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// Expired reports whether the entry is past its expiry. An entry is live
// through ExpiresAt itself; only strictly later reads miss.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Live reports whether the entry may be served: valid and not expired.
func (e *Entry) Live(now time.Time) bool {
	return e.Valid && !e.Expired(now)
}

// Touch records a read hit.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessed = now
}

// RemainingTTL returns the time left before expiry, clamped at zero.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	if e.Expired(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// RefreshDue reports whether the remaining TTL has dropped to or below the
// given fraction of the full TTL. Policies carry the threshold but nothing
// schedules refreshes yet; callers wanting proactive refresh poll this.
func (e *Entry) RefreshDue(now time.Time, threshold float64) bool {
	ttl := e.TTL()
	if ttl <= 0 || threshold <= 0 {
		return false
	}
	return float64(e.RemainingTTL(now)) <= threshold*float64(ttl)
}

// RecordFailure notes a backend error against the entry's bookkeeping.
func (e *Entry) RecordFailure(msg string) {
	e.ErrorCount++
	e.LastError = msg
}

// DecodePayload returns the payload as its data type's model.
func (e *Entry) DecodePayload() (interface{}, error) {
	if !e.DataType.Valid() {
		return nil, ErrUnknownDataType
	}
	return e.DataType.Codec().Decode(e.Payload)
}
