package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/configuration"
)

const defaultTimeout = 30 * time.Second

// DateFormat is the date format of engine REST query parameters.
const DateFormat = "2006-01-02T15:04:05.000-0700"

// Client is a rate limited client of one engine's REST API.
type Client struct {
	alias      string
	baseUrl    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(config configuration.EngineConfiguration) (*Client, error) {
	baseUrl, err := url.Parse(strings.TrimSuffix(config.Url, "/"))
	if err != nil {
		return nil, errors.WithStack(&flowlenserrors.ErrInvalidArgument{
			Name:    "Url",
			Value:   config.Url,
			Message: err.Error(),
		})
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(config.Burst, 1))
	}
	return &Client{
		alias:      config.Alias,
		baseUrl:    baseUrl,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}, nil
}

func (c *Client) Alias() string {
	return c.alias
}

// getJson GETs path and decodes the response body into out. A 404 means the engine does not serve the resource
// (yet) and is returned as an *flowlenserrors.ErrSourceNotFound.
func (c *Client) getJson(ctx *flowlenscontext.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.WithStack(err)
	}
	u := c.baseUrl.JoinPath(path)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s from engine %s", path, c.alias)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.WithStack(&flowlenserrors.ErrSourceNotFound{DataSource: c.alias, Source: path})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("engine %s responded to %s with %s: %s", c.alias, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s response of engine %s", path, c.alias)
	}
	return nil
}
