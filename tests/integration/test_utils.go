//go:build integration

package integration

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"os"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-dataplane-bootstrap/pkg/config"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/retry"
)

func runWhenKonnect(t *testing.T) {
	t.Helper()

	if os.Getenv("KONNECT_TOKEN") == "" && os.Getenv("KONNECT_COOKIE_FILE") == "" {
		t.Skip("no Konnect credentials, skipping")
	}
}

func runWhenDocker(t *testing.T) {
	t.Helper()

	if os.Getenv("KONNECT_DP_SKIP_DOCKER") != "" {
		t.Skip("docker disabled, skipping")
	}
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// getTestClient returns a Konnect client whose requests go through a
// RecordRequestProxy.
func getTestClient(t *testing.T, cfg *config.Config) (*konnect.Client, *RecordRequestProxy) {
	t.Helper()

	target, err := url.Parse(cfg.Address)
	require.NoError(t, err)
	proxy := NewRecordRequestProxy(target)
	server := httptest.NewServer(proxy)
	t.Cleanup(server.Close)

	opts := cfg.ClientOpts(testLogger(t))
	opts.Address = server.URL
	client, err := konnect.NewClient(opts)
	require.NoError(t, err)
	return client, proxy
}

// pollPolicy gives a real data plane time to pull its image and connect.
func pollPolicy() retry.Policy {
	return retry.Policy{Timeout: 3 * time.Minute, Interval: 2 * time.Second}
}

// RecordRequestProxy is a reverse proxy of the Konnect API that records
// the requests sent to it.
type RecordRequestProxy struct {
	lock     gosync.RWMutex
	proxy    *httputil.ReverseProxy
	requests []*http.Request
}

// NewRecordRequestProxy returns a RecordRequestProxy sending requests to the target URL.
func NewRecordRequestProxy(target *url.URL) *RecordRequestProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	return &RecordRequestProxy{proxy: proxy}
}

func (p *RecordRequestProxy) addRequest(req *http.Request, bodyContent []byte) {
	p.lock.Lock()
	defer p.lock.Unlock()
	// Create a new reader to replace the body because the original body closes after request sent.
	req.Body = io.NopCloser(bytes.NewBuffer(bodyContent))
	p.requests = append(p.requests, req)
}

func (p *RecordRequestProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	buf, _ := io.ReadAll(req.Body)
	p.addRequest(req.Clone(context.Background()), buf)
	req.Body = io.NopCloser(bytes.NewBuffer(buf))
	p.proxy.ServeHTTP(rw, req)
}

func (p *RecordRequestProxy) dumpRequests() []*http.Request {
	p.lock.RLock()
	defer p.lock.RUnlock()
	reqs := make([]*http.Request, 0, len(p.requests))
	for _, req := range p.requests {
		reqs = append(reqs, req.Clone(context.Background()))
	}
	return reqs
}

var _ http.Handler = &RecordRequestProxy{}
