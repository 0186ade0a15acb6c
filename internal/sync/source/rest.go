package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

const (
	defaultPageSize    = 100
	defaultHTTPTimeout = 30 * time.Second
)

// RESTAdapter pulls records from a paginated JSON API. Each page is
// fetched lazily as the iterator drains.
type RESTAdapter struct {
	client *http.Client

	baseURL  string
	path     string
	idField  string
	pageSize int
	token    string
}

// NewRESTAdapter creates an unconfigured REST adapter. Init must be
// called before use.
func NewRESTAdapter() *RESTAdapter {
	return &RESTAdapter{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Name identifies the adapter in session records and logs.
func (a *RESTAdapter) Name() string { return "rest" }

// Init prepares the adapter with its configuration.
func (a *RESTAdapter) Init(ctx context.Context, config map[string]any) error {
	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		return fmt.Errorf("rest adapter requires base_url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	a.baseURL = baseURL

	a.path, _ = config["records_path"].(string)
	if a.path == "" {
		a.path = "/records"
	}

	a.idField, _ = config["id_field"].(string)
	if a.idField == "" {
		a.idField = "id"
	}

	a.pageSize = defaultPageSize
	switch v := config["page_size"].(type) {
	case int:
		if v > 0 {
			a.pageSize = v
		}
	case float64:
		if v > 0 {
			a.pageSize = int(v)
		}
	}

	if token, _ := config["auth_token"].(string); token != "" {
		a.token = os.ExpandEnv(token)
	}

	if timeout, _ := config["timeout_seconds"].(int); timeout > 0 {
		a.client.Timeout = time.Duration(timeout) * time.Second
	}
	return nil
}

// ValidateConnection checks the source is reachable.
func (a *RESTAdapter) ValidateConnection(ctx context.Context) error {
	page, err := a.fetchPage(ctx, 1, 1)
	if err != nil {
		return err
	}
	_ = page
	return nil
}

// TotalCount asks the source how many records it will yield.
func (a *RESTAdapter) TotalCount(ctx context.Context) (int, bool, error) {
	page, err := a.fetchPage(ctx, 1, 1)
	if err != nil {
		return 0, false, err
	}
	if page.TotalCount == nil {
		return 0, false, nil
	}
	return *page.TotalCount, true, nil
}

// Stream opens an iterator over the source's records.
func (a *RESTAdapter) Stream(ctx context.Context) (RecordIterator, error) {
	return &restIterator{adapter: a, page: 1}, nil
}

type restPage struct {
	Data       []map[string]any `json:"data"`
	TotalCount *int             `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

func (a *RESTAdapter) fetchPage(ctx context.Context, page, size int) (*restPage, error) {
	u, err := url.Parse(a.baseURL + a.path)
	if err != nil {
		return nil, fmt.Errorf("invalid records URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(size))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, wrapTransportError("fetch_page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &domain.RateLimitError{Limiter: "source_api", RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.NetworkError{
			Op:    "fetch_page",
			Cause: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body),
		}
	}

	var decoded restPage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode page %d: %w", page, err)
	}
	return &decoded, nil
}

func wrapTransportError(op string, err error) error {
	timeout := false
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		timeout = netErr.Timeout()
	}
	return &domain.NetworkError{Op: op, Timeout: timeout, Cause: err}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// restIterator drains the API one page at a time.
type restIterator struct {
	adapter *RESTAdapter
	page    int
	buf     []map[string]any
	idx     int
	done    bool
}

func (it *restIterator) Next(ctx context.Context) (*domain.SourceRecord, error) {
	for it.idx >= len(it.buf) {
		if it.done {
			return nil, io.EOF
		}
		page, err := it.adapter.fetchPage(ctx, it.page, it.adapter.pageSize)
		if err != nil {
			return nil, err
		}
		it.page++
		it.buf = page.Data
		it.idx = 0
		if !page.HasMore || len(page.Data) == 0 {
			it.done = true
		}
	}

	fields := it.buf[it.idx]
	it.idx++

	return &domain.SourceRecord{
		ExternalID: fmt.Sprint(fields[it.adapter.idField]),
		Fields:     fields,
	}, nil
}

func (it *restIterator) Close() error {
	it.buf = nil
	it.done = true
	return nil
}
