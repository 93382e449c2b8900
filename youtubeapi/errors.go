package youtubeapi

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// isChatEnded matches the API's 403 with reason liveChatEnded, the normal
// end-of-stream signal.
func isChatEnded(err error) bool {
	var ge *googleapi.Error
	if !errors.As(err, &ge) || ge.Code != http.StatusForbidden {
		return false
	}
	for _, e := range ge.Errors {
		if e.Reason == "liveChatEnded" {
			return true
		}
	}
	return false
}

// isAlreadyBanned matches the 409 returned when the author is banned already;
// treated as success so repeated flags stay idempotent.
func isAlreadyBanned(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == http.StatusConflict
}

// IsTransient reports whether a provider error is worth retrying: rate limits,
// server-side failures, or anything below the HTTP layer.
func IsTransient(err error) bool {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusTooManyRequests || ge.Code >= 500
	}
	return err != nil
}
