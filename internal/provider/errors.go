package provider

import "fmt"

// StatusError is an HTTP-level failure from the provider: the transport
// round-trip completed but returned a non-2xx status. The status code
// is raised verbatim into the per-recipient failure result.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Body)
}

// APIError is an application-level failure embedded in a 200 response
// body. The Cloud API can accept the HTTP request and still reject the
// message inside the payload; callers must treat this as a failure
// distinct from both transport errors and clean successes.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	ErrCode int    `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "unknown provider error"
	}
	return e.Message
}
