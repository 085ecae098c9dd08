// Package probe queries the candidate validation API that backs the portal.
// It is an optional pre-check; its verdict never replaces the form attempt.
package probe

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aluiziolira/anemwatch/config"
)

const cacheSize = 16

// Headers mirror what the portal's own front-end sends.
var defaultHeaders = map[string]string{
	"Accept":             "application/json, text/plain, */*",
	"Accept-Language":    "en-US,en;q=0.9,ar;q=0.8",
	"Sec-Ch-Ua":          `"Chromium";v="131", "Google Chrome";v="131", "Not_A Brand";v="99"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-site",
	"Referer":            "https://minha.anem.dz/",
}

// Result is a decoded validation response.
type Result struct {
	Status    int
	Fields    map[string]any
	FetchedAt time.Time
	Cached    bool
}

// LogValue reports field names and boolean flags only; other values may carry
// personal data.
func (r *Result) LogValue() slog.Value {
	if r == nil {
		return slog.StringValue("<nil>")
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := []slog.Attr{
		slog.Int("status", r.Status),
		slog.Bool("cached", r.Cached),
		slog.Any("fields", keys),
	}
	for _, k := range keys {
		if b, ok := r.Fields[k].(bool); ok {
			attrs = append(attrs, slog.Bool(k, b))
		}
	}
	return slog.GroupValue(attrs...)
}

// Client performs validation requests through a colly collector.
type Client struct {
	endpoint  *url.URL
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
	cache     *expirable.LRU[string, Result]
	logger    *slog.Logger
}

// New builds a client from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(cfg.ProbeEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse probe endpoint: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("probe endpoint must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		endpoint:  parsed,
		userAgent: cfg.UserAgent,
		timeout:   cfg.ProbeTimeout,
		logger:    logger.With(slog.String("component", "probe")),
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ProbeTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.ProbeInsecure}, //nolint:gosec // opt-in for the portal's broken chain
		},
	}
	if cfg.ProbeCacheTTL > 0 {
		c.cache = expirable.NewLRU[string, Result](cacheSize, nil, cfg.ProbeCacheTTL)
	}
	return c, nil
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.transport = rt
}

// Check asks the API about the candidate. Successful answers are cached for
// the configured TTL.
func (c *Client) Check(ctx context.Context, creds config.Credentials) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(creds)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			cached.Cached = true
			return &cached, nil
		}
	}

	target := *c.endpoint
	q := target.Query()
	q.Set("wassitNumber", creds.Wassit())
	q.Set("identityDocNumber", creds.Identity())
	target.RawQuery = q.Encode()

	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(c.timeout)
	collector.WithTransport(c.transport)

	var (
		result  *Result
		callErr error
		start   time.Time
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		start = time.Now()
		for k, v := range defaultHeaders {
			r.Headers.Set(k, v)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		fields := make(map[string]any)
		if err := json.Unmarshal(r.Body, &fields); err != nil {
			callErr = ErrDecode{Err: err}
			return
		}
		result = &Result{Status: r.StatusCode, Fields: fields, FetchedAt: time.Now()}
		c.logger.Debug("candidate validation answered",
			slog.Int("status", r.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
	})

	collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		callErr = classifyError(err, statusCode)
	})

	if err := collector.Visit(target.String()); err != nil && callErr == nil {
		callErr = classifyError(err, 0)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if callErr != nil {
		return nil, callErr
	}
	if result == nil {
		return nil, fmt.Errorf("candidate validation returned no response")
	}

	if c.cache != nil {
		c.cache.Add(key, *result)
	}
	return result, nil
}

func cacheKey(creds config.Credentials) string {
	sum := sha256.Sum256([]byte(creds.Wassit() + "\x00" + creds.Identity()))
	return hex.EncodeToString(sum[:])
}
