package objstore

import (
	"path"
	"strings"
)

const (
	ReservedPrefix = ".s3stream"
	LocksPrefix    = "locks"
	ManifestSuffix = ".manifest.json"
	lockFileSuffix = ".lock"
)

// LockKey is the key of the lock object guarding writes to key.
func LockKey(key string) string {
	key = strings.Trim(key, "/")
	return path.Join(ReservedPrefix, LocksPrefix, key+lockFileSuffix)
}

func ManifestKey(key string) string {
	return strings.TrimSuffix(key, "/") + ManifestSuffix
}

// NormalizePrefix converts backslashes, collapses repeated slashes and drops
// a leading slash. A trailing slash is preserved since it is significant for
// listing ("logs/" does not match "logs-old/...").
func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	prefix = strings.ReplaceAll(prefix, "\\", "/")
	for strings.Contains(prefix, "//") {
		prefix = strings.ReplaceAll(prefix, "//", "/")
	}
	prefix = strings.TrimLeft(prefix, "/")
	return prefix
}

// ParseLocation splits "bucket/key/with/slashes" (an optional s3:// scheme is
// accepted) into bucket and key.
func ParseLocation(loc string) (bucket, key string, ok bool) {
	loc = strings.TrimPrefix(loc, "s3://")
	bucket, key, _ = strings.Cut(loc, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, key, true
}
