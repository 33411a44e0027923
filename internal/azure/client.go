package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxBatchSize is the work-item cap per workitemsbatch request imposed
	// by the remote API.
	maxBatchSize = 200

	apiVersionBatch = "7.1-preview.3"
	apiVersionWiql  = "7.1-preview.2"
	apiVersionPatch = "7.2-preview.3"
)

// Options configures a Client.
type Options struct {
	// Organization and Project identify the remote instance:
	// https://dev.azure.com/{organization}/{project}.
	Organization string
	Project      string

	// PAT is the personal access token, sent as Basic auth username.
	PAT string

	// BaseURL overrides the computed https://dev.azure.com base.
	// Used by tests.
	BaseURL string

	// Timeout bounds each HTTP attempt. Defaults to 10s.
	Timeout time.Duration

	// MaxAttempts bounds retries on transient failures (HTTP 429/5xx,
	// network errors). Defaults to 4.
	MaxAttempts int

	// InitialBackoff is the first retry delay. Defaults to 500ms.
	InitialBackoff time.Duration

	// Logger for retry activity. Nil means stderr.
	Logger *log.Logger
}

// Client talks to the work-item REST surface of one Azure DevOps project.
type Client struct {
	baseURL        string
	authHeader     string
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	logger         *log.Logger
}

// NewClient creates a work-item client.
func NewClient(opts Options) (*Client, error) {
	if opts.PAT == "" {
		return nil, fmt.Errorf("personal access token cannot be empty")
	}

	base := opts.BaseURL
	if base == "" {
		if opts.Organization == "" || opts.Project == "" {
			return nil, fmt.Errorf("organization and project cannot be empty")
		}
		base = fmt.Sprintf("https://dev.azure.com/%s/%s",
			url.PathEscape(opts.Organization), url.PathEscape(opts.Project))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 4
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[azure] ", log.LstdFlags)
	}

	return &Client{
		baseURL:        base + "/_apis/wit",
		authHeader:     "Basic " + base64.StdEncoding.EncodeToString([]byte(opts.PAT+":")),
		httpClient:     &http.Client{Timeout: timeout},
		maxAttempts:    attempts,
		initialBackoff: initial,
		logger:         logger,
	}, nil
}

// FetchBatch retrieves the given work items in as few requests as the API
// allows (200 ids per request). Ids absent remotely are simply missing
// from the result; callers surface those as NotFoundError per item.
func (c *Client) FetchBatch(ctx context.Context, ids []int) (map[int]*WorkItem, error) {
	items := make(map[int]*WorkItem, len(ids))

	for start := 0; start < len(ids); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		req := batchRequest{
			IDs:         ids[start:end],
			Expand:      "all",
			ErrorPolicy: "omit",
		}
		var resp batchResponse
		err := c.withRetry(ctx, "workitemsbatch", func() error {
			return c.doJSON(ctx, http.MethodPost, "/workitemsbatch?api-version="+apiVersionBatch,
				"application/json", req, &resp)
		})
		if err != nil {
			return nil, err
		}

		for i := range resp.Value {
			item := resp.Value[i]
			items[item.ID] = &item
		}
	}

	return items, nil
}

// QueryTestCaseIDs runs a WIQL query for all Test Case work items under
// the given area path and returns their ids.
func (c *Client) QueryTestCaseIDs(ctx context.Context, areaPath string) ([]int, error) {
	query := "SELECT [System.Id] FROM WorkItems WHERE [System.WorkItemType] = 'Test Case'"
	if areaPath != "" {
		query += fmt.Sprintf(" AND [System.AreaPath] = '%s'", escapeWiql(areaPath))
	}

	var resp wiqlResponse
	err := c.withRetry(ctx, "wiql", func() error {
		return c.doJSON(ctx, http.MethodPost, "/wiql?api-version="+apiVersionWiql,
			"application/json", wiqlRequest{Query: query}, &resp)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(resp.WorkItems))
	for _, ref := range resp.WorkItems {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// Patch applies a partial update to one work item, guarded by the
// revision observed at fetch time. Only the supplied operations are sent;
// the document never overwrites unrelated fields.
//
// Returns the new revision on success. A stale revision yields
// *ConflictError.
func (c *Client) Patch(ctx context.Context, id, rev int, ops []Operation) (int, error) {
	doc := make([]Operation, 0, len(ops)+1)
	doc = append(doc, testRev(rev))
	doc = append(doc, ops...)

	var updated WorkItem
	err := c.withRetry(ctx, fmt.Sprintf("patch %d", id), func() error {
		err := c.doJSON(ctx, http.MethodPatch,
			fmt.Sprintf("/workitems/%d?api-version=%s", id, apiVersionPatch),
			"application/json-patch+json", doc, &updated)
		return classifyItemError(err, id, rev)
	})
	if err != nil {
		return 0, err
	}
	return updated.Rev, nil
}

// classifyItemError maps response statuses that are meaningful per item.
func classifyItemError(err error, id, rev int) error {
	if err == nil {
		return nil
	}
	var re *remoteError
	if errors.As(err, &re) {
		switch re.Status {
		case http.StatusNotFound:
			return &NotFoundError{ID: id}
		case http.StatusConflict, http.StatusPreconditionFailed:
			return &ConflictError{ID: id, Rev: rev}
		}
	}
	return err
}

// doJSON performs one HTTP attempt: encode body, send, classify status,
// decode response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path, contentType string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err // network errors are transient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNonAuthoritativeInfo:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNonAuthoritativeInfo:
		// A bad PAT surfaces as 401 or as a 203 redirect to the sign-in
		// page.
		return &AuthError{Status: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests:
		c.waitRetryAfter(ctx, resp)
		return &remoteError{Status: resp.StatusCode, Body: readSnippet(resp.Body)}

	default:
		return &remoteError{Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
}

// waitRetryAfter honors a Retry-After header before the next backoff
// attempt, bounded so a hostile header cannot stall the run.
func (c *Client) waitRetryAfter(ctx context.Context, resp *http.Response) {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return
	}
	wait := time.Duration(seconds) * time.Second
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	c.logger.Printf("Rate limited, honoring Retry-After of %v", wait)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// withRetry runs fn under bounded exponential backoff. Transient failures
// (429/5xx, network errors) are retried up to MaxAttempts; exhaustion is
// reported as *RateLimitError. Typed errors pass through unchanged.
func (c *Client) withRetry(ctx context.Context, desc string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = 8 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			c.logger.Printf("Transient failure on %s (attempt %d/%d): %v", desc, attempts, c.maxAttempts, err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err == nil {
		return nil
	}

	for {
		var perm *backoff.PermanentError
		if !errors.As(err, &perm) {
			break
		}
		err = perm.Unwrap()
	}
	if isTransient(err) {
		return &RateLimitError{Attempts: attempts, Last: err}
	}
	return err
}

// isTransient reports whether an attempt failure is worth retrying.
func isTransient(err error) bool {
	var re *remoteError
	if errors.As(err, &re) {
		return re.Status == http.StatusTooManyRequests || re.Status >= 500
	}
	var authErr *AuthError
	var nfErr *NotFoundError
	var confErr *ConflictError
	if errors.As(err, &authErr) || errors.As(err, &nfErr) || errors.As(err, &confErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	// Connection resets, timeouts, DNS hiccups.
	return true
}

// readSnippet drains up to 512 bytes of a response body for error
// messages.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(bytes.TrimSpace(b))
}

// escapeWiql doubles single quotes for embedding in a WIQL string
// literal.
func escapeWiql(s string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte("'"), []byte("''")))
}
