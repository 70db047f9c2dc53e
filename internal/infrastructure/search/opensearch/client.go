// Package opensearch indexes analysis session summaries and searches them by
// label and accession code.
package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ContactScope/internal/config"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid opensearch configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "opensearch connection failed")
)

// DefaultIndex holds session documents when no index is configured.
const DefaultIndex = "contactscope-sessions"

// Client wraps the OpenSearch client with a health flag.
type Client struct {
	client  *opensearch.Client
	index   string
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient connects and pings the cluster.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrInvalidConfig.WithDetail("addresses required")
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}
	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	c := newClient(osClient, cfg.Index, logger)
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}
	c.logger.Info("opensearch connected", logging.Strings("addresses", cfg.Addresses), logging.String("index", c.index))
	return c, nil
}

func newClient(osClient *opensearch.Client, index string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if index == "" {
		index = DefaultIndex
	}
	return &Client{client: osClient, index: index, logger: logger}
}

// Ping checks the cluster and updates the health flag.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.New(errors.ErrCodeServiceUnavailable, "ping returned error status")
	}
	c.healthy.Store(true)
	return nil
}

// HealthCheck pings the cluster.
func (c *Client) HealthCheck(ctx context.Context) error { return c.Ping(ctx) }

// IsHealthy returns the result of the last ping.
func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// Index returns the session index name.
func (c *Client) Index() string { return c.index }

// Close is a no-op; the HTTP transport has nothing to release.
func (c *Client) Close() error {
	c.logger.Info("opensearch client closed")
	return nil
}

// responseError turns an error response into an AppError carrying the
// cluster's reason when it sent one.
func responseError(resp *opensearchapi.Response, code errors.ErrorCode, msg string) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Reason != "" {
		return errors.New(code, msg).WithDetail(body.Error.Type + ": " + body.Error.Reason)
	}
	return errors.Newf(code, "%s: status %d", msg, resp.StatusCode)
}
