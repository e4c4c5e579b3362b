package notify

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingRecipient = errors.New("notify: recipient required")
	ErrMissingBody      = errors.New("notify: body required")
	ErrNotConfigured    = errors.New("notify: provider credentials missing")
	// ErrRejected marks a send the provider refused outright. Resending the
	// same message will not succeed.
	ErrRejected = errors.New("notify: provider rejected message")
)

// statusError wraps a non-2xx provider response. Client errors other than
// throttling are marked with ErrRejected.
func statusError(provider string, status int, detail string) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return fmt.Errorf("%w: %s: %s", ErrRejected, provider, detail)
	}
	return fmt.Errorf("notify: %s send failed: %s", provider, detail)
}
