// Package rcsb downloads structure flat files by accession code.
package rcsb

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ContactScope/pkg/errors"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 64 << 20

// BytesCache stores raw downloads. redis.Cache satisfies it.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client fetches structure text from a flat-file download endpoint. It is
// safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	userAgent    string
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	maxBytes     int64
	cache        BytesCache
	cacheTTL     time.Duration
	logger       logging.Logger
	metrics      *prometheus.AppMetrics
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache serves repeated accessions from cache.
func WithCache(cache BytesCache, ttl time.Duration) Option {
	return func(c *Client) { c.cache, c.cacheTTL = cache, ttl }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithMaxBytes caps a single download. Values below 1 keep DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// NewClient builds a Client from cfg. cfg.BaseURL carries a %s placeholder
// for the accession code.
func NewClient(cfg config.FetchConfig, log logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(limit, burst),
		userAgent:    cfg.UserAgent,
		retryMax:     cfg.RetryMax,
		retryWaitMin: cfg.RetryWaitMin,
		retryWaitMax: cfg.RetryWaitMax,
		maxBytes:     DefaultMaxBytes,
		cacheTTL:     cfg.CacheTTL,
		logger:       log.Named("rcsb"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the download URL for a normalized accession.
func (c *Client) URL(accession string) string {
	return fmt.Sprintf(c.baseURL, accession)
}

// Fetch downloads the entry for accession. The code is normalized to upper
// case first. Any failure to obtain a success response is a source error
// (CodeSourceUnavailable, or CodeSourceRateLimited when the endpoint kept
// answering 429); an empty body is returned as is.
func (c *Client) Fetch(ctx context.Context, accession string) ([]byte, error) {
	code, err := structure.NormalizeAccession(accession)
	if err != nil {
		return nil, err
	}

	key := "pdb:" + code
	if c.cache != nil {
		if data, err := c.cache.GetBytes(ctx, key); err == nil {
			c.metrics.RecordFetch("cached")
			return data, nil
		} else if !errors.IsNotFound(err) {
			c.logger.Debug("Structure cache read failed", logging.String("accession", code), logging.Err(err))
		}
	}

	timer := c.metrics.FetchTimer()
	data, err := c.download(ctx, code)
	timer.ObserveDuration()
	if err != nil {
		c.metrics.RecordFetch("error")
		return nil, err
	}
	c.metrics.RecordFetch("ok")

	if c.cache != nil {
		if err := c.cache.SetBytes(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn("Structure cache write failed", logging.String("accession", code), logging.Err(err))
		}
	}
	return data, nil
}

func (c *Client) download(ctx context.Context, code string) ([]byte, error) {
	url := c.URL(code)
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				wait = c.backoff(attempt)
			}
			c.logger.Debug("Retrying structure download",
				logging.String("accession", code), logging.Int("attempt", attempt), logging.Duration("wait", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, c.unavailable(code, ctx.Err())
			}
			wait = 0
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.unavailable(code, err)
		}

		data, hint, retry, err := c.once(ctx, url, code)
		if err == nil {
			c.logger.Debug("Structure downloaded", logging.String("accession", code), logging.Int("bytes", len(data)))
			return data, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		wait = hint
	}
	return nil, lastErr
}

// once performs a single request. retry reports whether another attempt may
// succeed: rate limiting, network errors and 5xx answers. hint is the
// Retry-After delay of a 429.
func (c *Client) once(ctx context.Context, url, code string) (data []byte, hint time.Duration, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, false, errors.Wrap(err, errors.CodeInternal, "build fetch request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, true, c.unavailable(code, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, retryAfter(resp.Header.Get("Retry-After"), c.retryWaitMax), true,
			errors.New(errors.CodeSourceRateLimited, "structure source rate limited").
				WithDetail("accession=" + code)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, resp.StatusCode >= 500,
			errors.New(errors.CodeSourceUnavailable, "structure source returned an error").
				WithDetail(fmt.Sprintf("accession=%s status=%d", code, resp.StatusCode))
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, 0, true, c.unavailable(code, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, 0, false, errors.New(errors.CodeStructureTooLarge, "structure exceeds download limit").
			WithDetail(fmt.Sprintf("accession=%s limit=%d", code, c.maxBytes))
	}
	return data, 0, false, nil
}

func (c *Client) unavailable(code string, cause error) *errors.AppError {
	return errors.New(errors.CodeSourceUnavailable, "structure source unavailable").
		WithDetail("accession=" + code).WithCause(cause)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if d <= 0 || (c.retryWaitMax > 0 && d > c.retryWaitMax) {
		d = c.retryWaitMax
	}
	if d <= 0 {
		return 0
	}
	// up to 25% jitter
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}

func retryAfter(h string, limit time.Duration) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}
