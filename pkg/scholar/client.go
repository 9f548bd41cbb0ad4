package scholar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Semantic Scholar Graph API root.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultPaperFields are requested for single-paper lookups.
	DefaultPaperFields = "title,year,authors,abstract,externalIds"

	DefaultFloor    = 100 * time.Millisecond
	DefaultStep     = 100 * time.Millisecond
	DefaultDecrease = 50 * time.Millisecond

	// pageSize is the largest page the references/citations endpoints accept.
	pageSize = 1000
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholar_requests_total",
			Help: "Requests sent to the bibliographic service by response class",
		},
		[]string{"status"},
	)

	pacingInterval = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scholar_pacing_interval_seconds",
		Help: "Current delay enforced between bibliographic service calls",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(pacingInterval)
}

// APIError is returned for any non-2xx response other than 429.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scholar: status %d: %s", e.StatusCode, e.Body)
}

// Client is an adaptively paced HTTP client for the Semantic Scholar Graph API.
// The pacing interval is shared by every caller of the same Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     logrus.FieldLogger

	mu            sync.Mutex
	limiter       *rate.Limiter
	interval      time.Duration
	floor         time.Duration
	step          time.Duration
	decrease      time.Duration
	decreaseAfter int
	successes     int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKey sets the key sent in the x-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPacing overrides the floor, the throttle step and the success decrease.
func WithPacing(floor, step, decrease time.Duration) ClientOption {
	return func(c *Client) {
		c.floor = floor
		c.step = step
		c.decrease = decrease
	}
}

// WithDecreaseAfter sets how many consecutive successes trigger one decrease.
func WithDecreaseAfter(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.decreaseAfter = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client starting at the pacing floor.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		baseURL:       BaseURL,
		floor:         DefaultFloor,
		step:          DefaultStep,
		decrease:      DefaultDecrease,
		decreaseAfter: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		c.logger = l
	}
	if c.floor <= 0 {
		c.floor = DefaultFloor
	}
	c.interval = c.floor
	c.limiter = rate.NewLimiter(rate.Every(c.interval), 1)
	// start with the token spent so the first request is paced too
	c.limiter.Allow()
	pacingInterval.Set(c.interval.Seconds())
	return c
}

// Interval returns the current pacing interval.
func (c *Client) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func (c *Client) setIntervalLocked(d time.Duration) {
	c.interval = d
	c.limiter.SetLimit(rate.Every(d))
	pacingInterval.Set(d.Seconds())
}

func (c *Client) onThrottled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = 0
	c.setIntervalLocked(c.interval + c.step)
	c.logger.WithField("interval", c.interval.String()).Warn("Rate limited, slowing down")
}

func (c *Client) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
	if c.successes < c.decreaseAfter || c.interval <= c.floor {
		return
	}
	c.successes = 0
	next := c.interval - c.decrease
	if next < c.floor {
		next = c.floor
	}
	c.setIntervalLocked(next)
}

// Fetch performs a GET on endpoint (relative to the base URL) and returns the body.
// Throttled requests are retried until they succeed or ctx ends.
func (c *Client) Fetch(ctx context.Context, endpoint string) ([]byte, error) {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("scholar: build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			requestsTotal.WithLabelValues("transport_error").Inc()
			return nil, fmt.Errorf("scholar: request %s: %w", endpoint, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			requestsTotal.WithLabelValues("throttled").Inc()
			c.onThrottled()
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			requestsTotal.WithLabelValues("error").Inc()
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if readErr != nil {
			return nil, fmt.Errorf("scholar: read body: %w", readErr)
		}
		requestsTotal.WithLabelValues("ok").Inc()
		c.onSuccess()
		return body, nil
	}
}

// Paper fetches metadata for one DOI.
func (c *Client) Paper(ctx context.Context, doi string) (*Paper, error) {
	endpoint := fmt.Sprintf("paper/DOI:%s?fields=%s", escapeDOI(doi), DefaultPaperFields)
	body, err := c.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return ParsePaper(doi, body), nil
}

// References returns DOIs of papers cited by doi, at most limit of them (limit < 0 means all).
func (c *Client) References(ctx context.Context, doi string, limit int) ([]string, error) {
	return c.linkedDOIs(ctx, doi, "references", "citedPaper", limit)
}

// Citations returns DOIs of papers citing doi, at most limit of them (limit < 0 means all).
func (c *Client) Citations(ctx context.Context, doi string, limit int) ([]string, error) {
	return c.linkedDOIs(ctx, doi, "citations", "citingPaper", limit)
}

func (c *Client) linkedDOIs(ctx context.Context, doi, edge, side string, limit int) ([]string, error) {
	if limit == 0 {
		return nil, nil
	}
	path := fmt.Sprintf("data.#.%s.externalIds.DOI", side)

	var dois []string
	offset := 0
	for {
		endpoint := fmt.Sprintf("paper/DOI:%s/%s?fields=externalIds&offset=%d&limit=%d",
			escapeDOI(doi), edge, offset, pageSize)
		body, err := c.Fetch(ctx, endpoint)
		if err != nil {
			return dois, err
		}

		parsed := gjson.ParseBytes(body)
		for _, v := range parsed.Get(path).Array() {
			d := NormalizeDOI(v.String())
			if d == "" {
				continue
			}
			dois = append(dois, d)
			if limit > 0 && len(dois) >= limit {
				return dois, nil
			}
		}

		next := parsed.Get("next")
		if !next.Exists() || int(next.Int()) <= offset {
			return dois, nil
		}
		offset = int(next.Int())
	}
}

// escapeDOI escapes a DOI for a path segment but keeps its slash, as the API expects.
func escapeDOI(doi string) string {
	return strings.ReplaceAll(url.PathEscape(doi), "%2F", "/")
}
