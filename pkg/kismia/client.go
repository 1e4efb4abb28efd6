package kismia

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	errs "matchcrawl/pkg/errors"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/retry"
)

// Client talks to the upstream API. It wraps exactly one network call per
// attempt and retries only transport-level failures; HTTP error statuses
// are returned to the caller untouched, since many of them are
// semantically meaningful (a 400 on a duplicate like, for instance).
type Client struct {
	httpClient    *http.Client
	baseURL       string
	userAgent     string
	clientVersion string
	maxRetries    int
	retryDelay    time.Duration
	funnelID      string
	landingID     string
	logger        logger.Logger
}

// Options configures a Client
type Options struct {
	BaseURL       string
	UserAgent     string
	ClientVersion string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	// FunnelID is sent as a session cookie alongside every request
	FunnelID string
}

// NewClient creates a new API client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}

	return &Client{
		httpClient:    &http.Client{Timeout: opts.Timeout},
		baseURL:       opts.BaseURL,
		userAgent:     opts.UserAgent,
		clientVersion: opts.ClientVersion,
		maxRetries:    opts.MaxRetries,
		retryDelay:    opts.RetryDelay,
		funnelID:      opts.FunnelID,
		landingID:     strconv.FormatInt(time.Now().UnixMilli(), 10),
		logger:        log,
	}
}

// BaseURL returns the configured upstream base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// commonHeaders returns the mobile-web header set the upstream expects.
// An empty accessToken omits the authorization header.
func (c *Client) commonHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("accept", "application/json, text/plain, */*")
	h.Set("accept-language", "en-US")
	h.Set("platform", "mobile")
	h.Set("platform-version", "2")
	h.Set("referer", c.baseURL+"/matches")
	h.Set("user-agent", c.userAgent)
	h.Set("x-client-version", c.clientVersion)
	if accessToken != "" {
		h.Set("authorization", "JWT "+accessToken)
	}
	return h
}

// addCookies attaches the session cookies the upstream expects. The
// landing_user value is the session start in unix millis, assigned once
// per client.
func (c *Client) addCookies(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: "lang", Value: "en"})
	req.AddCookie(&http.Cookie{Name: "landing_user", Value: c.landingID})
	if c.funnelID != "" {
		req.AddCookie(&http.Cookie{Name: "funnel_id", Value: c.funnelID})
	}
}

// do performs one request attempt with transport-failure retry. The
// request body, if any, is rebuilt per attempt.
func (c *Client) do(ctx context.Context, method, url string, body []byte, headers http.Header) (*http.Response, error) {
	op := func() (*http.Response, error) {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		var req *http.Request
		var err error
		if reader != nil {
			req, err = http.NewRequestWithContext(ctx, method, url, reader)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, url, nil)
		}
		if err != nil {
			return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
		}

		for key, values := range headers {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		c.addCookies(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
				"method":   method,
				"url":      url,
				"error":    err.Error(),
				"duration": duration,
			})
			return nil, errs.New(errs.ErrorTypeTransport, 0, "transport error: %v", err)
		}

		c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
			"method":   method,
			"url":      url,
			"status":   resp.StatusCode,
			"duration": duration,
		})

		return resp, nil
	}

	return retry.DoWithResult(op, &retry.Config{
		MaxAttempts: c.maxRetries,
		Backoff:     &retry.ConstantBackoff{Delay: c.retryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger,
	})
}
