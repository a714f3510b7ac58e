// Package http fetches pages without a browser for static scraping.
package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/PentesterFlow/ScrapeIt/internal/errors"
	"github.com/PentesterFlow/ScrapeIt/internal/ratelimit"
)

// Client is an HTTP client tuned for fetching HTML documents.
type Client struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	maxBody   int64
	retrier   *errors.Retrier
	limiter   *ratelimit.Limiter
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool
	// MaxBodySize caps the decoded body in bytes.
	MaxBodySize int64
	Retry       errors.RetryConfig
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		SkipTLSVerify:       true,
		MaxBodySize:         10 * 1024 * 1024,
		Retry:               errors.DefaultRetryConfig(),
	}
}

// NewClient creates a new HTTP client.
func NewClient(config ClientConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultClientConfig().MaxBodySize
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
		headers:   config.Headers,
		maxBody:   config.MaxBodySize,
		retrier:   errors.NewRetrier(config.Retry),
	}
}

// SetLimiter paces requests per domain.
func (c *Client) SetLimiter(l *ratelimit.Limiter) {
	c.limiter = l
}

// Response is a fetched document with its body decoded to UTF-8.
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Get performs one GET request. An empty userAgent uses the client
// default. Status codes >= 400 are returned as errors along with the
// response.
func (c *Client) Get(ctx context.Context, targetURL, userAgent string) (*Response, error) {
	start := time.Now()
	result := &Response{URL: targetURL}

	if c.limiter != nil {
		if u, err := url.Parse(targetURL); err == nil {
			if err := c.limiter.WaitDomain(ctx, u.Host); err != nil {
				return result, errors.Categorize(err, targetURL)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return result, errors.NewPolicyError(targetURL, "invalid request URL: "+err.Error())
	}

	if userAgent == "" {
		userAgent = c.userAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return result, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")

	body, err := c.readBody(resp)
	if err != nil {
		return result, errors.NewNetworkError(targetURL, "body_read", err)
	}
	result.Body = body
	result.Duration = time.Since(start)

	if resp.StatusCode >= 400 {
		return result, errors.NewHTTPStatusError(targetURL, resp.StatusCode)
	}
	return result, nil
}

// GetWithRetry performs Get, retrying transient failures with backoff.
func (c *Client) GetWithRetry(ctx context.Context, targetURL, userAgent string) (*Response, error) {
	var result *Response

	retryResult := c.retrier.Do(ctx, "http_get", targetURL, func(ctx context.Context) error {
		var err error
		result, err = c.Get(ctx, targetURL, userAgent)
		return err
	})

	if result == nil {
		result = &Response{URL: targetURL}
	}
	if !retryResult.Success {
		return result, retryResult.LastError
	}
	return result, nil
}

// readBody decompresses and converts the body to UTF-8.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	raw, err := io.ReadAll(io.LimitReader(reader, c.maxBody))
	if err != nil {
		return nil, err
	}

	decoded, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return raw, nil
	}
	utf8, err := io.ReadAll(decoded)
	if err != nil {
		return raw, nil
	}
	return utf8, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
