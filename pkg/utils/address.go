package utils

import "strings"

// SplitUserAddress splits a user id of the form "localId@server" into
// its parts. A bare id has an empty server and is treated as local by
// callers. The split happens on the last '@' so local ids containing
// '@' (email-style) keep their server suffix intact.
func SplitUserAddress(userID string) (localID, server string) {
	idx := strings.LastIndex(userID, "@")
	if idx < 0 {
		return userID, ""
	}
	return userID[:idx], userID[idx+1:]
}

// ValidUserAddress reports whether a user id is non-empty and, when it
// carries a server suffix, both halves are non-empty.
func ValidUserAddress(userID string) bool {
	if userID == "" {
		return false
	}
	local, server := SplitUserAddress(userID)
	if local == "" {
		return false
	}
	if strings.Contains(userID, "@") && server == "" {
		return false
	}
	return true
}
