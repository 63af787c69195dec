package converge

import (
	"errors"
	"fmt"

	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
)

// Phase is the stage a data plane bootstrap is in.
type Phase int

const (
	// AwaitingNode waits for the data plane to show up in the node list.
	AwaitingNode Phase = iota
	// AwaitingConvergence waits for the node to report the expected hash.
	AwaitingConvergence
	// Converged is terminal: the node runs the expected configuration.
	Converged
	// Failed is terminal: a fatal error or an exhausted retry budget.
	Failed
)

func (p Phase) String() string {
	switch p {
	case AwaitingNode:
		return "awaiting-node"
	case AwaitingConvergence:
		return "awaiting-convergence"
	case Converged:
		return "converged"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == Converged || p == Failed
}

// ErrMissingExpectedHash is the failure when the control plane has no
// expected hash to compare against.
var ErrMissingExpectedHash = errors.New("control plane returned no expected config hash")

// NoNodeError is the transient failure while no data plane node has
// connected yet.
type NoNodeError struct {
	ControlPlaneID string
}

func (e *NoNodeError) Error() string {
	return fmt.Sprintf("no data plane node connected to control plane %s", e.ControlPlaneID)
}

// HashMismatchError is the transient failure while a node runs a
// configuration other than the expected one.
type HashMismatchError struct {
	NodeID string
	Got    string
	Want   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("config hash mismatch on node %s: got %q want %q", e.NodeID, e.Got, e.Want)
}

// UnexpectedObservationError is the failure when an observation arrives
// in a phase that cannot accept it.
type UnexpectedObservationError struct {
	Phase       Phase
	Observation Observation
}

func (e *UnexpectedObservationError) Error() string {
	return fmt.Sprintf("unexpected %T while %s", e.Observation, e.Phase)
}

// State is the derived convergence state of one data plane bootstrap.
type State struct {
	Phase          Phase
	ControlPlaneID string
	NodeID         string
	NodeVersion    string
	ExpectedHash   string
	LastSeenHash   string
	// Err explains why the state did not advance. It is transient in the
	// non-terminal phases and final in Failed.
	Err error
}

// NewState returns the initial state for controlPlaneID.
func NewState(controlPlaneID string) State {
	return State{Phase: AwaitingNode, ControlPlaneID: controlPlaneID}
}

// Observation is a reading taken from the control plane.
type Observation interface {
	observation()
}

// NodesListed is a reply of the node listing.
type NodesListed struct {
	Nodes []*konnect.Node
}

// ExpectedHashFetched carries the control plane's expected config hash.
type ExpectedHashFetched struct {
	Hash string
}

// NodeReported is a reply of the node detail endpoint.
type NodeReported struct {
	Node *konnect.Node
}

// PollFailed ends polling with Err.
type PollFailed struct {
	Err error
}

func (NodesListed) observation()         {}
func (ExpectedHashFetched) observation() {}
func (NodeReported) observation()        {}
func (PollFailed) observation()          {}

// Transition returns the state that follows s once obs is observed.
// A state that does not advance keeps its phase and carries the reason
// in Err. Terminal states never change.
func Transition(s State, obs Observation) State {
	if s.Phase.Terminal() {
		return s
	}

	switch o := obs.(type) {
	case PollFailed:
		return fail(s, o.Err)

	case ExpectedHashFetched:
		if o.Hash == "" {
			return fail(s, ErrMissingExpectedHash)
		}
		s.ExpectedHash = o.Hash
		return s

	case NodesListed:
		if s.Phase != AwaitingNode {
			return fail(s, &UnexpectedObservationError{Phase: s.Phase, Observation: obs})
		}
		if len(o.Nodes) == 0 || o.Nodes[0] == nil {
			s.Err = &NoNodeError{ControlPlaneID: s.ControlPlaneID}
			return s
		}
		if o.Nodes[0].ID == "" {
			return fail(s, fmt.Errorf("%w: node without id", konnect.ErrMalformedResponse))
		}
		s.Phase = AwaitingConvergence
		s.NodeID = o.Nodes[0].ID
		s.Err = nil
		return s

	case NodeReported:
		if s.Phase != AwaitingConvergence || o.Node == nil {
			return fail(s, &UnexpectedObservationError{Phase: s.Phase, Observation: obs})
		}
		if s.ExpectedHash == "" {
			return fail(s, ErrMissingExpectedHash)
		}
		s.LastSeenHash = o.Node.ConfigHash
		s.NodeVersion = o.Node.Version
		if o.Node.ConfigHash != s.ExpectedHash {
			s.Err = &HashMismatchError{NodeID: s.NodeID, Got: o.Node.ConfigHash, Want: s.ExpectedHash}
			return s
		}
		s.Phase = Converged
		s.Err = nil
		return s

	default:
		return fail(s, &UnexpectedObservationError{Phase: s.Phase, Observation: obs})
	}
}

func fail(s State, err error) State {
	s.Phase = Failed
	s.Err = err
	return s
}
