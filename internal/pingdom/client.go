// Package pingdom is a client for the Pingdom monitoring API. Checks, probes
// and per-check data use the 3.1 API; transaction monitors still live on the
// 2.1 API.
package pingdom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

const userAgent = "p2g (+https://github.com/livinlefevreloca/p2g)"

// retryStatuses are retried by the client. 401 is included because the 3.1
// API intermittently rejects valid tokens.
var retryStatuses = map[int]bool{
	http.StatusUnauthorized:          true,
	http.StatusRequestTimeout:        true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusInternalServerError:   true,
	http.StatusBadGateway:            true,
	http.StatusServiceUnavailable:    true,
	http.StatusGatewayTimeout:        true,
}

// Client talks to both Pingdom API versions
type Client struct {
	cfg        Config
	http       *retryablehttp.Client
	limiter    *rate.Limiter
	nameFilter *regexp.Regexp
	logger     *slog.Logger
}

// New creates a client from a validated config
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nameFilter, err := regexp.Compile(cfg.Regex)
	if err != nil {
		return nil, errors.Wrap(err, "compile name filter")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.CheckRetry = checkRetry(retryStatuses)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn("pingdom request failed, retrying",
				"path", req.URL.Path,
				"attempt", attempt)
		}
	}

	return &Client{
		cfg:        cfg,
		http:       rc,
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		nameFilter: nameFilter,
		logger:     logger,
	}, nil
}

// checkRetry retries transport errors and the given statuses
func checkRetry(statuses map[int]bool) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return statuses[resp.StatusCode], nil
	}
}

// get performs a GET against the 3.1 API, or the 2.1 API when legacy is set,
// and decodes the JSON body into out. Numbers decode as json.Number.
func (c *Client) get(ctx context.Context, legacy bool, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	base := c.cfg.BaseURL
	if legacy {
		base = c.cfg.LegacyBaseURL
	}
	u := strings.TrimRight(base, "/") + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.UpstreamFatal(errors.Wrapf(err, "build request %s", path))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if legacy {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("App-Key", c.cfg.AppKey)
		req.Header.Set("Account-Email", c.cfg.AccountEmail)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	c.logger.Debug("pingdom request", "path", path, "legacy", legacy)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.UpstreamFatal(errors.Mark(errors.Wrapf(err, "GET %s", path), errors.ErrUpstreamTransient))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Newf("GET %s: %s", path, resp.Status)
		if len(body) > 0 {
			err = errors.WithDetail(err, string(body))
		}
		if retryStatuses[resp.StatusCode] {
			err = errors.Mark(err, errors.ErrUpstreamTransient)
		}
		return errors.UpstreamFatal(err)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.UpstreamFatal(errors.Wrapf(err, "decode %s", path))
	}
	return nil
}

func entityPath(endpoint string, id int64) string {
	return fmt.Sprintf("%s/%d", endpoint, id)
}
