package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPageSize is the page size used by GetTransactions when limit < 1.
	DefaultPageSize = 25

	authKeyParam  = "auth_key"
	pageSizeParam = "pageSize"
	pageParam     = "page"

	transactionsField = "transactions"
)

var validStatusCodes = map[int]struct{}{
	http.StatusOK:        {},
	http.StatusCreated:   {},
	http.StatusNoContent: {},
}

// Config holds the connection settings for the Unmarshall API.
type Config struct {
	BaseURL string
	APIKey  string
}

// Recorder receives per-request telemetry. service/metrics.Metrics implements it.
type Recorder interface {
	RecordAPICall(operation string, statusCode int, duration float64)
	RecordAPIError(operation, kind string)
	RecordPagesFetched(operation string, pages int)
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithRateLimiter makes every request wait on l before it is sent.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// Client is the HTTP client for the Unmarshall blockchain data API.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	limiter    *rate.Limiter
}

// NewClient creates a new Unmarshall API client.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger.With("component", "unmarshall_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetWalletBalances returns the assets held by address on the given chain.
func (c *Client) GetWalletBalances(ctx context.Context, currency Currency, address string) ([]Object, error) {
	chain, err := chainFor(currency)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, request{
		operation: "get_wallet_balances",
		method:    http.MethodGet,
		endpoint:  fmt.Sprintf("/v1/%s/address/%s/assets", chain, url.PathEscape(address)),
	})
	if err != nil {
		return nil, err
	}

	var assets []Object
	if err := decodeJSON(data, &assets); err != nil {
		return nil, fmt.Errorf("failed to decode wallet balances: %w", err)
	}
	return assets, nil
}

// GetTransactions returns up to depth pages of limit transactions for address.
// depth < 1 is treated as 1 and limit < 1 as DefaultPageSize.
func (c *Client) GetTransactions(ctx context.Context, currency Currency, address string, depth, limit int) ([]Object, error) {
	chain, err := chainFor(currency)
	if err != nil {
		return nil, err
	}

	return c.getPaginated(ctx, paginatedRequest{
		request: request{
			operation: "get_transactions",
			method:    http.MethodGet,
			endpoint:  fmt.Sprintf("/v3/%s/address/%s/transactions", chain, url.PathEscape(address)),
		},
		depth:     depth,
		limit:     limit,
		dataField: transactionsField,
	})
}

// GetTransaction returns a single transaction by hash.
func (c *Client) GetTransaction(ctx context.Context, currency Currency, hash string) (Object, error) {
	chain, err := chainFor(currency)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, request{
		operation: "get_transaction",
		method:    http.MethodGet,
		endpoint:  fmt.Sprintf("/v1/%s/transactions/%s", chain, url.PathEscape(hash)),
	})
	if err != nil {
		return nil, err
	}

	var txn Object
	if err := decodeJSON(data, &txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return txn, nil
}

// GetWalletTransactionsCount returns the transaction count payload for address.
func (c *Client) GetWalletTransactionsCount(ctx context.Context, currency Currency, address string) (Object, error) {
	chain, err := chainFor(currency)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, request{
		operation: "get_wallet_transactions_count",
		method:    http.MethodGet,
		endpoint:  fmt.Sprintf("/v1/%s/address/%s/transactions/count", chain, url.PathEscape(address)),
	})
	if err != nil {
		return nil, err
	}

	var count Object
	if err := decodeJSON(data, &count); err != nil {
		return nil, fmt.Errorf("failed to decode transactions count: %w", err)
	}
	return count, nil
}

type request struct {
	operation string // metrics/log label, e.g. "get_transactions"
	method    string
	endpoint  string
	params    url.Values
	payload   any
}

type paginatedRequest struct {
	request
	depth     int
	limit     int
	dataField string
}

// getPaginated requests successive pages, accumulating the list under
// dataField until has_next is false or depth pages have been fetched.
// Any failure discards everything fetched so far.
func (c *Client) getPaginated(ctx context.Context, r paginatedRequest) ([]Object, error) {
	depth := r.depth
	if depth < 1 {
		depth = 1
	}
	limit := r.limit
	if limit < 1 {
		limit = DefaultPageSize
	}

	params := cloneValues(r.params)
	params.Set(pageSizeParam, fmt.Sprint(limit))

	var items []Object
	pages := 0
	for i := 1; i <= depth; i++ {
		params.Set(pageParam, fmt.Sprint(i))

		req := r.request
		req.params = params
		data, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		pages++

		var raw map[string]any
		if err := decodeJSON(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode page %d: %w", i, err)
		}

		p := decodePage(raw, r.dataField)
		items = append(items, p.Items...)

		c.logger.DebugContext(ctx, "fetched page",
			"operation", r.operation,
			"page", i,
			"items", len(p.Items),
			"has_next", p.HasNext,
		)

		if !p.HasNext {
			break
		}
	}

	if c.recorder != nil {
		c.recorder.RecordPagesFetched(r.operation, pages)
	}
	if items == nil {
		items = []Object{}
	}
	return items, nil
}

// do issues one authenticated request and returns the raw body of a
// successful response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	ref, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", r.endpoint, err)
	}
	u := c.baseURL.ResolveReference(ref)

	// Auth params go in last so they win over caller-supplied keys.
	query := cloneValues(r.params)
	for k, v := range c.authParams() {
		query[k] = v
	}
	u.RawQuery = query.Encode()

	var body io.Reader
	if r.payload != nil {
		b, err := json.Marshal(r.payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(ctx, r, newRequestError(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		redactURLError(err)
		if isTimeout(err) {
			return nil, c.fail(ctx, r, newTimeoutError(err))
		}
		return nil, c.fail(ctx, r, newRequestError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(ctx, r, newRequestError(err))
	}

	if c.recorder != nil {
		c.recorder.RecordAPICall(r.operation, resp.StatusCode, time.Since(start).Seconds())
	}

	if _, ok := validStatusCodes[resp.StatusCode]; !ok {
		return nil, c.fail(ctx, r, &BadResponseCodeError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		})
	}

	c.logger.DebugContext(ctx, "request completed",
		"operation", r.operation,
		"status_code", resp.StatusCode,
		"bytes", len(data),
	)
	return data, nil
}

// fail logs err and records it before handing it back to the caller.
func (c *Client) fail(ctx context.Context, r request, err error) error {
	kind := "client_error"
	var bad *BadResponseCodeError
	var cerr *ClientError
	switch {
	case errors.As(err, &bad):
		kind = "bad_response_code"
		c.logger.ErrorContext(ctx, "invalid API client response",
			"operation", r.operation,
			"status_code", bad.StatusCode,
			"data", bad.Body,
		)
	case errors.As(err, &cerr) && cerr.IsTimeout():
		kind = "timeout"
		c.logger.ErrorContext(ctx, "connect timeout", "operation", r.operation, "error", cerr.Err)
	default:
		c.logger.ErrorContext(ctx, "request exception", "operation", r.operation, "error", err)
	}

	if c.recorder != nil {
		c.recorder.RecordAPIError(r.operation, kind)
	}
	return err
}

func (c *Client) authParams() url.Values {
	return url.Values{authKeyParam: []string{c.apiKey}}
}

func chainFor(currency Currency) (string, error) {
	if !currency.Valid() {
		return "", fmt.Errorf("unsupported currency %s", currency)
	}
	return currency.ChainName(), nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// decodeJSON unmarshals data into v. An empty body (e.g. 204) leaves v untouched.
func decodeJSON(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactURLError strips the API key from the URL embedded in transport errors.
func redactURLError(err error) {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return
	}
	q := u.Query()
	if q.Has(authKeyParam) {
		q.Set(authKeyParam, "REDACTED")
		u.RawQuery = q.Encode()
		urlErr.URL = u.String()
	}
}
