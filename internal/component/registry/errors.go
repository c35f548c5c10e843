package registry

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GrpcErrorChecker classifies a gRPC status code as retryable, the way the
// teacher's resilience.HTTPErrorChecker classifies HTTP status codes: the
// same shape of policy decision, applied to this transport's error space
// instead of net/http's.
type GrpcErrorChecker struct{}

// IsRetryable implements resilience.RetryableErrorChecker.
func (GrpcErrorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		// Not a gRPC status error: an application-level failure (a
		// malformed frame, a decode error) rather than a transport fault.
		// Retrying would just repeat the same non-transient failure.
		return false
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// domainError wraps the registry's error(domain_error) payload. The exact
// schema of domain_error is opaque to this client; it is carried as a
// string and surfaced through Error().
type domainError struct {
	message string
}

func (e *domainError) Error() string { return e.message }

// IsDomainError reports whether err originated from a domain_error frame
// (e.g. component not found) rather than a transport failure, and returns
// its message. Callers use this to distinguish "the registry told us no"
// from "we couldn't reach the registry" when building a user-facing
// ComponentDownloadFailed/GetLatestVersionOfComponentFailed reason.
func IsDomainError(err error) (string, bool) {
	var de *domainError
	if errors.As(err, &de) {
		return de.message, true
	}
	return "", false
}
