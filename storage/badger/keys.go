package badger

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	quotaPrefix        = "quota"
	cacheEntryPrefix   = "wcache"
	cacheTimePrefix    = "wcachet"
	notificationPrefix = "notif"
	dedupeKeyPrefix    = "notifdk"
	tierPrefix         = "tier"
)

// makeQuotaKey generates the key of the quota record for (resource, subject).
// The subject is length-prefixed so subjects containing ':' cannot collide.
func makeQuotaKey(subjectID, resource string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d:%s", quotaPrefix, resource, len(subjectID), subjectID))
}

// makeCacheEntryKey generates the key of a cache entry by fingerprint.
func makeCacheEntryKey(key string) []byte {
	return []byte(cacheEntryPrefix + ":" + key)
}

// makeCacheTimeKey generates a composite key for the cache time index.
// Format: prefix:timestamp:fingerprint
func makeCacheTimeKey(createdAt time.Time, key string) []byte {
	prefixBytes := []byte(cacheTimePrefix + ":")
	buf := make([]byte, len(prefixBytes)+8+len(key))
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], key)
	return buf
}

// parseCacheTimeKey splits a time index key into its timestamp and fingerprint.
func parseCacheTimeKey(k []byte) (int64, string, bool) {
	prefixLen := len(cacheTimePrefix) + 1
	if len(k) < prefixLen+8 {
		return 0, "", false
	}
	micro := int64(binary.BigEndian.Uint64(k[prefixLen : prefixLen+8]))
	return micro, string(k[prefixLen+8:]), true
}

// makeNotificationPrefix generates the scan prefix of a subject's notifications.
func makeNotificationPrefix(subjectID string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", notificationPrefix, len(subjectID), subjectID))
}

// makeNotificationKey generates a composite key for a notification.
// Format: prefix:len:subject:timestamp:id
func makeNotificationKey(subjectID string, createdAt time.Time, id string) []byte {
	prefixBytes := makeNotificationPrefix(subjectID)
	buf := make([]byte, len(prefixBytes)+8+len(id))
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makeDedupeKey generates the key guarding a notification dedupe key.
func makeDedupeKey(dedupeKey string) []byte {
	return []byte(dedupeKeyPrefix + ":" + dedupeKey)
}

// makeTierKey generates the key of a subject's tier assignment.
func makeTierKey(subjectID string) []byte {
	return []byte(tierPrefix + ":" + subjectID)
}
