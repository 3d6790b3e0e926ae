// Package backend reads feature collections from the traffic study backend.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/observability"
)

// StudiesPath is the filtered study query endpoint.
const StudiesPath = "/query/studies"

// OverlayPath returns the fixed endpoint of a named overlay, escaped.
func OverlayPath(name string) string {
	return "/geojson/" + url.PathEscape(name)
}

const defaultMaxBody = 64 << 20

// StatusError is returned for a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// NewOutbound creates the outbound HTTP client. timeout bounds a whole request.
func NewOutbound(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	maxBody int64
}

// New creates a client for baseURL. A nil httpClient uses NewOutbound with a 30s timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = NewOutbound(30 * time.Second)
	}
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	return &Client{
		baseURL: u,
		http:    httpClient,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		maxBody: defaultMaxBody,
	}, nil
}

// FetchFeatures issues GET <base><path>?<params> and decodes the feature collection.
// path is already escaped. A malformed body is an empty result, not an error;
// a body over the size limit is an error.
func (c *Client) FetchFeatures(ctx context.Context, path string, params url.Values) ([]feature.Feature, error) {
	u := *c.baseURL
	rawPath := c.baseURL.EscapedPath() + path
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("backend path %q: %w", path, err)
	}
	u.Path, u.RawPath = decoded, rawPath
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	endpoint := endpointLabel(path)
	start := c.clock.Now()
	resp, err := c.http.Do(req)
	c.metrics.BackendDuration.WithLabelValues(endpoint).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.BackendRequests.WithLabelValues(endpoint, "0").Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.BackendRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		c.logger.DebugContext(ctx, "backend error", "url", u.String(), "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > c.maxBody {
		c.logger.WarnContext(ctx, "backend body too large", "url", u.String(), "limit", c.maxBody)
		return nil, fmt.Errorf("read body: response exceeds %d bytes", c.maxBody)
	}
	features := feature.DecodeCollection(b)
	c.logger.DebugContext(ctx, "backend read", "url", u.String(), "features", len(features))
	return features, nil
}

func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/geojson/") {
		return "overlay"
	}
	if path == StudiesPath {
		return "studies"
	}
	return "other"
}
