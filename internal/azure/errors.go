package azure

import "fmt"

// AuthError indicates rejected credentials. It is fatal to the whole sync
// session.
//
// Azure DevOps answers an invalid or expired PAT either with 401 or with a
// 203 redirect to the sign-in page; both map here.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by remote (HTTP %d): check the personal access token", e.Status)
}

// NotFoundError indicates the remote work item does not exist. Per-item,
// non-fatal.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("work item %d not found", e.ID)
}

// RateLimitError indicates retries were exhausted on transient failures
// (HTTP 429/5xx) or the request deadline was hit. Per-item, non-fatal.
type RateLimitError struct {
	Attempts int
	Last     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remote unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitError) Unwrap() error { return e.Last }

// ConflictError indicates a patch was rejected because the work item's
// revision moved since it was fetched. The engine re-fetches and retries
// the diff+patch exactly once.
type ConflictError struct {
	ID  int
	Rev int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("work item %d changed remotely (patch guarded on rev %d)", e.ID, e.Rev)
}

// remoteError carries an unclassified non-2xx response.
type remoteError struct {
	Status int
	Body   string
}

func (e *remoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("remote returned HTTP %d: %s", e.Status, e.Body)
}
