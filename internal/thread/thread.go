// Package thread decodes conversation thread identifiers into their user and
// lesson components.
package thread

import "strings"

// Parse splits a thread id of the form <user-id>-<lesson-id> on its last
// hyphen, so user ids may themselves contain hyphens. Malformed input (empty,
// no hyphen, empty side) degrades to ("", "") rather than an error; callers
// log it at debug if they care.
func Parse(threadID string) (userID, lessonID string) {
	if threadID == "" {
		return "", ""
	}

	idx := strings.LastIndex(threadID, "-")
	if idx < 0 {
		return "", ""
	}

	userID = strings.TrimSpace(threadID[:idx])
	lessonID = strings.TrimSpace(threadID[idx+1:])
	if userID == "" || lessonID == "" {
		return "", ""
	}
	return userID, lessonID
}
