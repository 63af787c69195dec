package konnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kong/go-kong/kong"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultAddress is the regional Konnect API used when none is configured.
const DefaultAddress = "https://us.api.konghq.com"

// ErrMalformedResponse is returned when a Konnect reply does not have the
// expected shape.
var ErrMalformedResponse = errors.New("malformed Konnect response")

// StatusError is returned when Konnect answers with a success status
// other than the one an operation requires.
type StatusError struct {
	Method string
	URL    string
	Status int
	Want   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d, want %d", e.Method, e.URL, e.Status, e.Want)
}

type service struct {
	client *Client
}

// Client talks to the Konnect v2 API. Requests are built and sent
// through go-kong's client, one instance per base URL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger

	mu    sync.Mutex
	kongs map[string]*kong.Client

	common service

	ControlPlanes  *ControlPlaneService
	Nodes          *NodeService
	DPCertificates *DPCertificateService
	Auth           *AuthService
}

// NewClient returns a Client for opts.Address authenticated with either
// a bearer token or a Netscape cookie file.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	httpClient, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: opts.Address,
		client:  httpClient,
		logger:  opts.Logger,
	}
	c.common.client = c
	c.ControlPlanes = (*ControlPlaneService)(&c.common)
	c.Nodes = (*NodeService)(&c.common)
	c.DPCertificates = (*DPCertificateService)(&c.common)
	c.Auth = (*AuthService)(&c.common)
	return c, nil
}

// BaseURL returns the regional API address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) kongClient(base string) (*kong.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kc, ok := c.kongs[base]; ok {
		return kc, nil
	}
	kc, err := kong.NewClient(kong.String(base), c.client)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", base, err)
	}
	if c.kongs == nil {
		c.kongs = map[string]*kong.Client{}
	}
	c.kongs[base] = kc
	return kc, nil
}

// do sends a request to base+endpoint and decodes a JSON reply into v
// when v is non-nil. Non-2xx replies come back as *kong.APIError.
func (c *Client) do(
	ctx context.Context, base, method, endpoint string, qs, body, v interface{},
) (*kong.Response, error) {
	kc, err := c.kongClient(base)
	if err != nil {
		return nil, err
	}
	req, err := kc.NewRequest(method, endpoint, qs, body)
	if err != nil {
		return nil, err
	}
	resp, err := kc.Do(ctx, req, v)
	c.logResponse(req, resp, err)
	if resp == nil && err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	return resp, err
}

// doRaw is do with the reply kept as raw JSON.
func (c *Client) doRaw(
	ctx context.Context, method, endpoint string, qs, body interface{},
) (*kong.Response, json.RawMessage, error) {
	var raw json.RawMessage
	resp, err := c.do(ctx, c.baseURL, method, endpoint, qs, body, &raw)
	return resp, raw, err
}

func (c *Client) logResponse(req *http.Request, resp *kong.Response, err error) {
	event := c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String())
	if resp != nil && resp.Response != nil {
		event = event.Int("status", resp.StatusCode)
	}
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("konnect response")
}

// unmarshalPath decodes the JSON value at path inside raw into v.
func unmarshalPath(raw []byte, path string, v interface{}) error {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return fmt.Errorf("%w: missing %q", ErrMalformedResponse, path)
	}
	if err := json.Unmarshal([]byte(r.Raw), v); err != nil {
		return fmt.Errorf("%w: decoding %q: %w", ErrMalformedResponse, path, err)
	}
	return nil
}
