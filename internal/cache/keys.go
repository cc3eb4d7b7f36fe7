package cache

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strconv"
)

// SchemaVersion is folded into every cache key so a row-shape change rolls
// out without colliding with keys written by older processes.
const SchemaVersion = 1

// redisNamespace prefixes every Redis key; the Redis instance is shared
// with the rest of the application.
const redisNamespace = "mingus:extdata:"

// DeriveKey produces the deterministic cache key for one artifact. The key
// fields are hashed over their canonical JSON encoding (map keys marshal in
// sorted order) so every process derives the same key, and the tier is part
// of the identity so subscription tiers never share entries.
func DeriveKey(dataType DataType, identifier string, tier Tier) string {
	keyData := map[string]interface{}{
		"data_type":      dataType.String(),
		"identifier":     identifier,
		"schema_version": SchemaVersion,
		"tier":           tier.String(),
	}
	data, _ := json.Marshal(keyData)
	return hashString(string(data))
}

func hashString(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// RedisKey namespaces a cache key for the Redis tier. The data type is kept
// in the clear so type-scoped flushes can SCAN a prefix.
func RedisKey(dataType DataType, key string) string {
	return redisNamespace + dataType.String() + ":" + key
}

// UserIdentifier builds the cache identifier for per-user artifacts such as
// job-security scores.
func UserIdentifier(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
