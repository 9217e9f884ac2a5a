package hdx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	actionPath = "/api/3/action/"

	searchPageSize       = 1000
	defaultActivityLimit = 31
)

var sites = map[string]string{
	"prod":    "https://data.humdata.org",
	"stage":   "https://stage.data-humdata-org.ahconu.org",
	"feature": "https://feature.data-humdata-org.ahconu.org",
	"demo":    "https://demo.data-humdata-org.ahconu.org",
}

// SiteURL maps a site name to its base URL. Absolute URLs are passed through.
func SiteURL(site string) (string, error) {
	if base, ok := sites[strings.ToLower(site)]; ok {
		return base, nil
	}
	if u, err := url.Parse(site); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.TrimRight(site, "/"), nil
	}
	return "", fmt.Errorf("unknown HDX site %q", site)
}

// UserAgent builds the User-Agent header, prefixed when a preprefix is set.
func UserAgent(userAgent, preprefix string) string {
	if preprefix == "" {
		return userAgent
	}
	return preprefix + ":" + userAgent
}

type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	Backoff       time.Duration
	MaxBackoff    time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:       60 * time.Second,
		RatePerSecond: 4,
		Burst:         2,
		MaxRetries:    3,
		Backoff:       500 * time.Millisecond,
		MaxBackoff:    5 * time.Second,
	}
}

type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter

	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewClient(baseURL, apiKey, userAgent string, opts Options) *Client {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, max(opts.Burst, 1)),
		retries:    opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
	}
}

type Organization struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

type Package struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Title           string        `json:"title"`
	MetadataCreated string        `json:"metadata_created"`
	Organization    *Organization `json:"organization"`
}

type Activity struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	UserID       string `json:"user_id"`
	ActivityType string `json:"activity_type"`
}

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"fullname"`
	DisplayName string `json:"display_name"`
}

type searchResult struct {
	Count   int       `json:"count"`
	Results []Package `json:"results"`
}

type actionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error"`
}

// APIError is a failed action call.
type APIError struct {
	Action  string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Action, e.Status, e.Message)
}

// Temporary reports whether the call may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// SearchPackages returns every dataset matching the filter query fq.
func (c *Client) SearchPackages(ctx context.Context, fq string) ([]Package, error) {
	var all []Package
	for start := 0; ; start += searchPageSize {
		params := url.Values{}
		params.Set("fq", fq)
		params.Set("rows", strconv.Itoa(searchPageSize))
		params.Set("start", strconv.Itoa(start))

		var page searchResult
		if err := c.call(ctx, "package_search", params, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)

		if len(page.Results) < searchPageSize || len(all) >= page.Count {
			return all, nil
		}
	}
}

// ActivityList returns up to limit change events of a dataset, most recent
// first. A limit of zero or less asks for the service default.
func (c *Client) ActivityList(ctx context.Context, id string, offset, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	body := map[string]any{
		"id":     id,
		"offset": offset,
		"limit":  limit,
	}

	var activities []Activity
	if err := c.call(ctx, "package_activity_list", nil, body, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

func (c *Client) ShowUser(ctx context.Context, id string) (User, error) {
	params := url.Values{}
	params.Set("id", id)

	var u User
	if err := c.call(ctx, "user_show", params, nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.call(ctx, "site_read", nil, nil, nil)
}

// DatasetURL is the public page of a dataset.
func (c *Client) DatasetURL(name string) string {
	return c.baseURL + "/dataset/" + name
}

func (c *Client) call(ctx context.Context, action string, params url.Values, body any, out any) error {
	return retry(ctx, c.retries, c.backoff, c.maxBackoff, func() error {
		return c.do(ctx, action, params, body, out)
	})
}

func (c *Client) do(ctx context.Context, action string, params url.Values, body any, out any) error {
	endpoint := c.baseURL + actionPath + action
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	method := http.MethodGet
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		method = http.MethodPost
		reqBody = bytes.NewReader(b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var ar actionResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Action: action, Status: resp.StatusCode, Message: truncate(string(data), 200)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !ar.Success {
		msg := http.StatusText(resp.StatusCode)
		if ar.Error != nil && ar.Error.Message != "" {
			msg = ar.Error.Message
		}
		return &APIError{Action: action, Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(ar.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", action, err)
	}
	return nil
}

// retry runs fn up to attempts times with doubling backoff capped at maxDelay.
// Only transport failures and temporary API errors are retried.
func retry(ctx context.Context, attempts int, initial, maxDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	d := initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
			if d < maxDelay {
				d = min(d*2, maxDelay)
			}
		}
		if err = fn(); err == nil || !retryable(ctx, err) {
			return err
		}
	}
	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
