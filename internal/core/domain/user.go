package domain

import "strings"

// DefaultUserKey is the scope used when a caller supplies no user key.
const DefaultUserKey = "default"

// ResolveUserKey returns the trimmed key, or DefaultUserKey when blank.
func ResolveUserKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultUserKey
	}
	return key
}
