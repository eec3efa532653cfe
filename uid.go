package mantis_arm

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultUIDServiceURL hands out robot IDs to controllers that report zero.
const DefaultUIDServiceURL = "https://marginallyclever.com/evil_minion_getuid.php"

// UIDIssuer hands out a new robot ID.
type UIDIssuer interface {
	IssueUID(ctx context.Context) (int64, error)
}

// HTTPUIDIssuer gets IDs from a web service that answers a GET with the ID
// on the first line of the body.
type HTTPUIDIssuer struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64

	// InitialInterval is the first retry delay. Zero uses the backoff default.
	InitialInterval time.Duration
}

// NewHTTPUIDIssuer returns an issuer for url with the given request timeout
// and retry count.
func NewHTTPUIDIssuer(url string, timeout time.Duration, maxRetries uint64) *HTTPUIDIssuer {
	return &HTTPUIDIssuer{
		URL:        url,
		Client:     &http.Client{Timeout: timeout},
		MaxRetries: maxRetries,
	}
}

// IssueUID requests an ID, retrying transport errors and server errors with
// exponential backoff. A body that is not a positive integer is not retried.
func (h *HTTPUIDIssuer) IssueUID(ctx context.Context) (int64, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	policy := backoff.NewExponentialBackOff()
	if h.InitialInterval > 0 {
		policy.InitialInterval = h.InitialInterval
	}

	var uid int64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("uid service returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("uid service returned %s", resp.Status))
		}

		scanner := bufio.NewScanner(resp.Body)
		line := ""
		if scanner.Scan() {
			line = strings.TrimSpace(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("uid service returned %q: %w", line, err))
		}
		if id <= 0 {
			return backoff.Permanent(fmt.Errorf("uid service returned non-positive id %d", id))
		}
		uid = id
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, h.MaxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, fmt.Errorf("failed to get robot uid from %s: %w", h.URL, err)
	}
	return uid, nil
}
