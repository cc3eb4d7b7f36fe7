package cache

import "errors"

// Common errors for cache operations
var (
	// ErrNotFound is returned when a key is absent from a backend tier
	ErrNotFound = errors.New("cache entry not found")

	// ErrEntryTooLarge is returned when an entry exceeds the memory tier's byte budget
	ErrEntryTooLarge = errors.New("entry too large for memory tier")

	// ErrUnknownTier is returned for subscription tiers with no configured policy
	ErrUnknownTier = errors.New("unknown subscription tier")

	// ErrUnknownDataType is returned for data types outside the supported set
	ErrUnknownDataType = errors.New("unknown data type")

	// ErrInvalidPayload is returned when a payload fails its data type's codec
	ErrInvalidPayload = errors.New("invalid payload")
)
