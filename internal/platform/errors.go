package platform

import "fmt"

// RateLimitError indicates the upstream rejected the call with a 429.
// Callers back off or settle for partial results; they never retry blindly.
type RateLimitError struct {
	Endpoint string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Endpoint)
}

// PermissionError indicates a 403-class refusal (e.g. the followers
// listing requires elevated API access). The affected feature degrades;
// the run continues.
type PermissionError struct {
	Endpoint string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Endpoint)
}

// BadRequestError indicates a 400-class rejection. InvalidCursor is set
// when the rejection names the pagination/since parameter, which entitles
// the caller to exactly one retry with the cursor cleared.
type BadRequestError struct {
	Endpoint      string
	Detail        string
	InvalidCursor bool
}

func (e *BadRequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bad request: %s: %s", e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("bad request: %s", e.Endpoint)
}

// HTTPError is the catch-all for other non-2xx responses.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Status, e.Body)
}
