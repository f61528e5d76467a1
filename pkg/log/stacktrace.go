package log

import (
	"github.com/cockroachdb/errors"
)

// extractStacktrace returns the cockroachdb/errors stack recorded on err, or
// "" when err carries none.
func extractStacktrace(err error) string {
	if err == nil {
		return ""
	}
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
