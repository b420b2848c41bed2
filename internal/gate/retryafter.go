package gate

import (
	"regexp"
	"strconv"
)

// The backend has no structured retry-after field; the residual wait is
// embedded in the human-readable detail as a numeral immediately
// followed by the seconds marker ("Retry after 17s").
var retryAfterPattern = regexp.MustCompile(`(\d+)s`)

// parseRetryAfter extracts the wait in seconds from a rate-limit detail
// string. Returns false when no numeral-with-marker is present; callers
// must treat that as "leave the cooldown unchanged", never as an error.
func parseRetryAfter(detail string) (int, bool) {
	m := retryAfterPattern.FindStringSubmatch(detail)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return seconds, true
}
