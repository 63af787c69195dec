package converge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver/v4"
	"github.com/rs/zerolog"

	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/retry"
)

// VersionError is returned when the converged node runs a version
// outside the required range.
type VersionError struct {
	NodeID     string
	Version    string
	Constraint string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("node %s runs version %q, want %s", e.NodeID, e.Version, e.Constraint)
}

// PollerOpts configures a Poller.
type PollerOpts struct {
	// NodePolicy bounds the wait for the first node to connect.
	NodePolicy retry.Policy
	// HashPolicy bounds the wait for the node to report the expected hash.
	HashPolicy retry.Policy
	// VersionConstraint is an optional semver range, e.g. ">=3.4.0",
	// the converged node's version must satisfy.
	VersionConstraint string

	Logger zerolog.Logger
}

// Poller drives a State from AwaitingNode to Converged against Konnect.
type Poller struct {
	client     *konnect.Client
	nodePolicy retry.Policy
	hashPolicy retry.Policy

	constraint      string
	versionRange    semver.Range
	hasVersionCheck bool

	logger zerolog.Logger
}

// NewPoller returns a Poller reading from client.
func NewPoller(client *konnect.Client, opts PollerOpts) (*Poller, error) {
	p := &Poller{
		client:     client,
		nodePolicy: opts.NodePolicy,
		hashPolicy: opts.HashPolicy,
		constraint: opts.VersionConstraint,
		logger:     opts.Logger,
	}
	if opts.VersionConstraint != "" {
		r, err := semver.ParseRange(opts.VersionConstraint)
		if err != nil {
			return nil, fmt.Errorf("parsing version constraint %q: %w", opts.VersionConstraint, err)
		}
		p.versionRange = r
		p.hasVersionCheck = true
	}
	return p, nil
}

// Run waits until a data plane connected to controlPlaneID runs the
// control plane's expected configuration.
//
// Node discovery and hash comparison are retried in separate loops, so
// the returned error tells "no node ever connected" (*NoNodeError) apart
// from "the node never converged" (*HashMismatchError). The returned
// state is always set; on error its phase is Failed.
func (p *Poller) Run(ctx context.Context, controlPlaneID string) (State, error) {
	s := NewState(controlPlaneID)

	s = p.awaitNode(ctx, s)
	if s.Phase == Failed {
		return s, s.Err
	}
	p.logger.Info().Str("node_id", s.NodeID).Msg("data plane node connected")

	hash, err := p.client.ControlPlanes.ExpectedConfigHash(ctx, controlPlaneID)
	if err != nil {
		s = Transition(s, PollFailed{Err: err})
		return s, s.Err
	}
	s = Transition(s, ExpectedHashFetched{Hash: hash})
	if s.Phase == Failed {
		return s, s.Err
	}

	s = p.awaitConvergence(ctx, s)
	if s.Phase == Failed {
		return s, s.Err
	}
	p.logger.Info().Str("node_id", s.NodeID).Str("config_hash", s.LastSeenHash).Msg("data plane converged")

	if err := p.checkVersion(s); err != nil {
		return fail(s, err), err
	}
	return s, nil
}

func (p *Poller) awaitNode(ctx context.Context, s State) State {
	last := s
	res, err := retry.Do(ctx, p.nodePolicy,
		func(ctx context.Context) (State, error) {
			nodes, err := p.client.Nodes.List(ctx, s.ControlPlaneID, nil)
			if err != nil {
				return s, err
			}
			last = Transition(s, NodesListed{Nodes: nodes})
			return last, nil
		},
		advanced(AwaitingNode),
		retry.WithNotify(p.notify(AwaitingNode)),
	)
	if err != nil {
		return Transition(last, PollFailed{Err: err})
	}
	return res.Value
}

func (p *Poller) awaitConvergence(ctx context.Context, s State) State {
	last := s
	res, err := retry.Do(ctx, p.hashPolicy,
		func(ctx context.Context) (State, error) {
			node, err := p.client.Nodes.Get(ctx, s.ControlPlaneID, s.NodeID)
			if err != nil {
				return s, err
			}
			last = Transition(s, NodeReported{Node: node})
			return last, nil
		},
		advanced(AwaitingConvergence),
		retry.WithNotify(p.notify(AwaitingConvergence)),
	)
	if err != nil {
		return Transition(last, PollFailed{Err: err})
	}
	return res.Value
}

// advanced accepts states that left from. Staying in from is retried,
// reaching Failed is not.
func advanced(from Phase) func(State) error {
	return func(s State) error {
		switch s.Phase {
		case from:
			return s.Err
		case Failed:
			return retry.Permanent(s.Err)
		default:
			return nil
		}
	}
}

func (p *Poller) notify(phase Phase) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		p.logger.Debug().Str("phase", phase.String()).Int("attempt", attempt).Err(err).Msg("retrying")
		cprint.RetryPrintf("** %s -- retrying in %s **\n", err, wait)
	}
}

func (p *Poller) checkVersion(s State) error {
	if !p.hasVersionCheck {
		return nil
	}
	v, err := parseNodeVersion(s.NodeVersion)
	if err != nil || !p.versionRange(v) {
		return &VersionError{NodeID: s.NodeID, Version: s.NodeVersion, Constraint: p.constraint}
	}
	return nil
}

// parseNodeVersion parses versions such as "3.9.1.0" or "3.4.2.1-enterprise"
// reported by nodes, keeping the first three numeric components.
func parseNodeVersion(version string) (semver.Version, error) {
	core, _, _ := strings.Cut(version, "-")
	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return semver.ParseTolerant(strings.Join(parts, "."))
}
