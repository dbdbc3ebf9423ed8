// Package graphite delivers metric points to a hosted Graphite sink endpoint,
// one plaintext line per request.
package graphite

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/p2g/internal/errors"
	"github.com/livinlefevreloca/p2g/internal/model"
)

const (
	sinkPath  = "/api/v1/sink"
	userAgent = "p2g (+https://github.com/livinlefevreloca/p2g)"
)

var retryStatuses = map[int]bool{
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusUnprocessableEntity:   true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

// fatalStatuses mean the sink rejects every request, not just this point
var fatalStatuses = map[int]bool{
	http.StatusUnauthorized: true,
	http.StatusForbidden:    true,
	http.StatusNotFound:     true,
}

// Client publishes points to one sink endpoint
type Client struct {
	cfg      Config
	endpoint string
	user     string
	token    string
	http     *retryablehttp.Client
	logger   *slog.Logger
}

// New creates a client from a validated config
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	user, token, _ := strings.Cut(cfg.Auth, ":")

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return retryStatuses[resp.StatusCode], nil
	}
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if retryStatuses[resp.StatusCode] {
			logger.Warn("graphite request failed",
				"status", resp.StatusCode,
				"txn", resp.Header.Get("X-App-Txn"))
		}
	}

	u := url.URL{Scheme: cfg.Scheme, Host: cfg.Hostname, Path: sinkPath}

	return &Client{
		cfg:      cfg,
		endpoint: u.String(),
		user:     user,
		token:    token,
		http:     rc,
		logger:   logger,
	}, nil
}

// Line renders a point in the plaintext protocol, prefixed when a prefix is set
func (c *Client) Line(p model.MetricPoint) string {
	path := p.Path
	if c.cfg.Prefix != "" {
		path = c.cfg.Prefix + "." + path
	}
	return path + " " + strconv.FormatFloat(p.Value, 'f', -1, 64) + " " + strconv.FormatInt(p.Timestamp, 10)
}

// Publish sends every point with bounded concurrency. The first failure stops
// the remaining sends. Errors that mean the sink is unusable for the whole
// pass are marked errors.ErrSinkFatal; a rejected point is a plain error.
func (c *Client) Publish(ctx context.Context, points []model.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, p := range points {
		line := c.Line(p)
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := c.send(gctx, line); err != nil {
				if gctx.Err() != nil {
					return err
				}
				c.logger.Error("failed to push to graphite", "line", line, "error", err)
				return err
			}
			c.logger.Debug("pushed to graphite", "line", line)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, line string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(line))
	if err != nil {
		return errors.SinkFatal(errors.Wrap(err, "build sink request"))
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.SinkFatal(errors.Wrap(err, "post to graphite"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = errors.Newf("graphite rejected %q: %s", line, resp.Status)
	if len(body) > 0 {
		err = errors.WithDetail(err, string(body))
	}
	if fatalStatuses[resp.StatusCode] || retryStatuses[resp.StatusCode] {
		return errors.SinkFatal(err)
	}
	return err
}
