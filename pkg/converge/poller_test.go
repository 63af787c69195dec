package converge

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect/konnecttest"
	"github.com/kong/go-dataplane-bootstrap/pkg/retry"
)

const (
	nodesPath        = "/v2/control-planes/cp-1/nodes"
	nodePath         = "/v2/control-planes/cp-1/nodes/n1"
	expectedHashPath = "/v2/control-planes/cp-1/expected-config-hash"
)

var fastPolicy = retry.Policy{Timeout: 500 * time.Millisecond, Interval: 5 * time.Millisecond}

func TestMain(m *testing.M) {
	cprint.DisableOutput = true
	m.Run()
}

func newTestPoller(t *testing.T, server *konnecttest.Server, opts PollerOpts) *Poller {
	t.Helper()
	if opts.NodePolicy == (retry.Policy{}) {
		opts.NodePolicy = fastPolicy
	}
	if opts.HashPolicy == (retry.Policy{}) {
		opts.HashPolicy = fastPolicy
	}
	opts.Logger = zerolog.Nop()
	p, err := NewPoller(server.Client(t), opts)
	require.NoError(t, err)
	return p
}

func TestPoller_Converges(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeLists:        [][]string{{}, {}, {"n1"}},
		NodeHashes:       []string{"H0", "H0", "H1"},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	})
	p := newTestPoller(t, server, PollerOpts{})

	s, err := p.Run(context.Background(), "cp-1")
	require.NoError(t, err)
	assert.Equal(t, Converged, s.Phase)
	assert.Equal(t, "n1", s.NodeID)
	assert.Equal(t, "H1", s.ExpectedHash)
	assert.Equal(t, "H1", s.LastSeenHash)

	assert.Equal(t, 3, server.Count(http.MethodGet, nodesPath))
	assert.Equal(t, 3, server.Count(http.MethodGet, nodePath), "converges on the third poll")
	assert.Equal(t, 1, server.Count(http.MethodGet, expectedHashPath))
}

func TestPoller_Ordering(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeLists:        [][]string{{}, {}, {"n1"}},
		NodeHashes:       []string{"H0", "H1"},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	})
	p := newTestPoller(t, server, PollerOpts{})

	_, err := p.Run(context.Background(), "cp-1")
	require.NoError(t, err)

	var paths []string
	for _, r := range server.Requests() {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{
		nodesPath, nodesPath, nodesPath,
		expectedHashPath,
		nodePath, nodePath,
	}, paths, "node detail is only queried once a node is known, the list never again")
}

func TestPoller_NoNodeEverConnects(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeLists:        [][]string{{}},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	})
	p := newTestPoller(t, server, PollerOpts{
		NodePolicy: retry.Policy{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond},
	})

	s, err := p.Run(context.Background(), "cp-1")
	var noNode *NoNodeError
	require.ErrorAs(t, err, &noNode)
	assert.Equal(t, Failed, s.Phase)
	assert.Empty(t, s.NodeID)
	assert.Zero(t, server.Count(http.MethodGet, expectedHashPath))
	assert.Zero(t, server.Count(http.MethodGet, nodePath))
}

func TestPoller_NeverConverges(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeLists:        [][]string{{"n1"}},
		NodeHashes:       []string{"H0", "H0", "H2"},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	})
	p := newTestPoller(t, server, PollerOpts{
		HashPolicy: retry.Policy{Timeout: 40 * time.Millisecond, Interval: 5 * time.Millisecond},
	})

	s, err := p.Run(context.Background(), "cp-1")
	var mismatch *HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "H2", mismatch.Got)
	assert.Equal(t, "H1", mismatch.Want)
	assert.Contains(t, err.Error(), `"H2"`)
	assert.Contains(t, err.Error(), `"H1"`)
	assert.False(t, strings.Contains(strings.ToLower(err.Error()), "timeout"))

	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, "n1", s.NodeID)
	assert.Equal(t, "H2", s.LastSeenHash)
}

func TestPoller_MalformedExpectedHashIsFatal(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeLists:        [][]string{{"n1"}},
		NodeHashes:       []string{"H1"},
		ExpectedHashBody: `{"hash":"H1"}`,
	})
	p := newTestPoller(t, server, PollerOpts{})

	s, err := p.Run(context.Background(), "cp-1")
	require.ErrorIs(t, err, konnect.ErrMalformedResponse)
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, 1, server.Count(http.MethodGet, expectedHashPath), "the expected hash is not retried")
	assert.Zero(t, server.Count(http.MethodGet, nodePath))
}

func TestPoller_VersionConstraint(t *testing.T) {
	opts := konnecttest.Options{
		NodeLists:        [][]string{{"n1"}},
		NodeHashes:       []string{"H1"},
		NodeVersion:      "3.4.2.1",
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	}

	t.Run("satisfied", func(t *testing.T) {
		server := konnecttest.NewServer(t, opts)
		p := newTestPoller(t, server, PollerOpts{VersionConstraint: ">=3.4.0"})
		s, err := p.Run(context.Background(), "cp-1")
		require.NoError(t, err)
		assert.Equal(t, Converged, s.Phase)
	})

	t.Run("not satisfied", func(t *testing.T) {
		server := konnecttest.NewServer(t, opts)
		p := newTestPoller(t, server, PollerOpts{VersionConstraint: ">=3.5.0"})
		s, err := p.Run(context.Background(), "cp-1")
		var versionErr *VersionError
		require.ErrorAs(t, err, &versionErr)
		assert.Equal(t, "3.4.2.1", versionErr.Version)
		assert.Equal(t, Failed, s.Phase)
	})

	t.Run("invalid constraint", func(t *testing.T) {
		_, err := NewPoller(nil, PollerOpts{VersionConstraint: "not a range"})
		require.Error(t, err)
	})
}

func TestParseNodeVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3.9.1.0", "3.9.1"},
		{"3.4.2.1-enterprise", "3.4.2"},
		{"3.8.0", "3.8.0"},
		{"3.7", "3.7.0"},
	}
	for _, tc := range tests {
		v, err := parseNodeVersion(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, v.String())
	}
	_, err := parseNodeVersion("")
	require.Error(t, err)
}
