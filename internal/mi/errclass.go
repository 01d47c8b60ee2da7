package mi

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// IsForbidden reports whether an error is an HTTP 403 from the platform.
// During a long-running delete the platform can reject requests against the
// database with 403; the orchestrator treats that as "deletion still in
// flight" while the deletion wait budget lasts, so a genuine permission
// failure still surfaces as a deletion timeout rather than being masked
// forever.
func IsForbidden(err error) bool {
	return hasStatusCode(err, http.StatusForbidden)
}

// IsNotFound reports whether an error is an HTTP 404 from the platform.
func IsNotFound(err error) bool {
	return hasStatusCode(err, http.StatusNotFound)
}

func hasStatusCode(err error, code int) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == code
	}
	return false
}
