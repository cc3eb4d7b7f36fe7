package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dev.mingus.money/internal/models"
)

// DataType identifies one kind of cached external artifact. The set is
// closed: every variant has a default TTL and a payload codec, so adding a
// data type without wiring both fails at package init.
type DataType string

const (
	// EmployerFinancial is financial data for a single employer
	EmployerFinancial DataType = "employer_financial"
	// WARNNotices is a state WARN Act layoff notice feed
	WARNNotices DataType = "warn_notices"
	// IndustryData is labor-statistics aggregates for an industry
	IndustryData DataType = "industry_data"
	// JobSecurityScore is a user's computed layoff-risk score
	JobSecurityScore DataType = "job_security_score"
	// LaborMarket is a regional labor-market snapshot
	LaborMarket DataType = "labor_market"
)

// DataTypes returns all supported data types in stable order.
func DataTypes() []DataType {
	return []DataType{EmployerFinancial, WARNNotices, IndustryData, JobSecurityScore, LaborMarket}
}

var dataTypeTTLs = map[DataType]time.Duration{
	EmployerFinancial: 24 * time.Hour,
	WARNNotices:       12 * time.Hour,
	IndustryData:      24 * time.Hour,
	JobSecurityScore:  1 * time.Hour,
	LaborMarket:       6 * time.Hour,
}

var dataTypeCodecs = map[DataType]PayloadCodec{
	EmployerFinancial: {newModel: func() payloadModel { return &models.EmployerFinancials{} }},
	WARNNotices:       {newModel: func() payloadModel { return &models.WARNNoticeSet{} }},
	IndustryData:      {newModel: func() payloadModel { return &models.IndustryStatistics{} }},
	JobSecurityScore:  {newModel: func() payloadModel { return &models.JobSecurityScore{} }},
	LaborMarket:       {newModel: func() payloadModel { return &models.LaborMarketSnapshot{} }},
}

func init() {
	for _, dt := range DataTypes() {
		if _, ok := dataTypeTTLs[dt]; !ok {
			panic(fmt.Sprintf("cache: data type %q has no default TTL", dt))
		}
		if _, ok := dataTypeCodecs[dt]; !ok {
			panic(fmt.Sprintf("cache: data type %q has no payload codec", dt))
		}
	}
}

// ParseDataType converts a wire/row name into a DataType.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	if !dt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataType, s)
	}
	return dt, nil
}

func (d DataType) String() string {
	return string(d)
}

// Valid reports whether the data type is one of the supported variants.
func (d DataType) Valid() bool {
	_, ok := dataTypeTTLs[d]
	return ok
}

// DefaultTTL returns the variant's time-to-live applied when a write has no
// explicit override.
func (d DataType) DefaultTTL() time.Duration {
	return dataTypeTTLs[d]
}

// Codec returns the variant's payload serializer.
func (d DataType) Codec() PayloadCodec {
	return dataTypeCodecs[d]
}

type payloadModel interface {
	Validate() error
}

// PayloadCodec serializes payloads for one data type. Encode round-trips the
// payload through the variant's model so misshapen or non-JSON values fail
// the write instead of landing in a backend.
type PayloadCodec struct {
	newModel func() payloadModel
}

// Encode validates the payload against the variant's model and returns its
// canonical JSON form.
func (c PayloadCodec) Encode(payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	m := c.newModel()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return out, nil
}

// Decode returns the typed model for a stored payload.
func (c PayloadCodec) Decode(raw json.RawMessage) (interface{}, error) {
	m := c.newModel()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return m, nil
}
