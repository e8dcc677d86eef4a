package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshwatch/mesh-topo/pkg/topoengine"
	"github.com/meshwatch/mesh-topo/pkg/utils"
)

// Client fetches the node and traceroute feeds from a mesh dashboard API.
type Client struct {
	base     string
	http     *http.Client
	useCache bool
	logger   *zap.Logger
}

type ClientOption func(*Client)

// WithCache serves repeated fetches from the local download cache, for batch
// runs re-executed against the same export.
func WithCache() ClientOption {
	return func(c *Client) { c.useCache = true }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Nodes fetches the current node directory.
func (c *Client) Nodes(ctx context.Context) ([]topoengine.Node, error) {
	body, err := c.get(ctx, c.base+NodesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	defer body.Close()

	nodes, err := ParseNodes(body)
	if err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	c.logger.Debug("fetched nodes", zap.Int("count", len(nodes)))
	return nodes, nil
}

// Traceroutes fetches the traceroute history for the given window.
func (c *Client) Traceroutes(ctx context.Context, lookback Lookback) ([]topoengine.Traceroute, error) {
	if !lookback.Valid() {
		return nil, fmt.Errorf("lookback %d hours: must be one of 24, 72, 168, 336, 720", lookback)
	}
	body, err := c.get(ctx, c.base+TraceroutesPath+"?hours="+strconv.Itoa(lookback.Hours()))
	if err != nil {
		return nil, fmt.Errorf("fetch traceroutes: %w", err)
	}
	defer body.Close()

	traceroutes, err := ParseTraceroutes(body)
	if err != nil {
		return nil, fmt.Errorf("parse traceroutes: %w", err)
	}
	c.logger.Debug("fetched traceroutes", zap.Int("count", len(traceroutes)), zap.Int("hours", lookback.Hours()))
	return traceroutes, nil
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	if c.useCache {
		return utils.GetCachedReader(url, true, "[mesh-api]")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp.Body, nil
}
