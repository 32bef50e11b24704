package roster

import (
	"errors"
	"fmt"

	"github.com/memberhub/roster-sync/internal/httpclient"
)

var (
	// ErrRemoteFetchFailed is returned when any page of a tenant's roster
	// cannot be retrieved. Partial rosters are never returned.
	ErrRemoteFetchFailed = errors.New("remote roster fetch failed")

	// ErrMalformedResponse marks a page body that could not be decoded or
	// contradicts the declared totals.
	ErrMalformedResponse = errors.New("malformed roster response")
)

// FetchError describes a failed roster fetch for one tenant.
type FetchError struct {
	TenantID string
	// StatusCode is the HTTP status of the failing page, zero for transport
	// and decoding failures.
	StatusCode int
	// RemoteMessage is the diagnostic text extracted from the remote body.
	RemoteMessage string
	Err           error
}

func newFetchError(tenantID string, err error) *FetchError {
	fe := &FetchError{
		TenantID:   tenantID,
		StatusCode: httpclient.StatusCode(err),
		Err:        err,
	}
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		fe.RemoteMessage = httpErr.RemoteMessage()
	}
	return fe
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("remote roster fetch failed for tenant %s: %v", e.TenantID, e.Err)
}

// Unwrap exposes both ErrRemoteFetchFailed and the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrRemoteFetchFailed, e.Err}
}
