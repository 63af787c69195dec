package konnect

import (
	"context"
	"fmt"
	"net/http"
)

// NodeService reads the data plane nodes a control plane knows about.
type NodeService service

// List returns the nodes connected to the control plane. An empty slice
// is a normal answer while a freshly started data plane is still
// handshaking.
func (s *NodeService) List(ctx context.Context, controlPlaneID string, opt *ListOpt) ([]*Node, error) {
	if emptyString(&controlPlaneID) {
		return nil, fmt.Errorf("controlPlaneID cannot be empty")
	}
	var qs interface{}
	if opt != nil {
		qs = opt
	}
	endpoint := fmt.Sprintf("/v2/control-planes/%s/nodes", controlPlaneID)
	_, raw, err := s.client.doRaw(ctx, http.MethodGet, endpoint, qs, nil)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	var nodes []*Node
	if err := unmarshalPath(raw, "items", &nodes); err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return nodes, nil
}

// Get returns a single node, including the hash of the configuration it
// currently runs.
func (s *NodeService) Get(ctx context.Context, controlPlaneID, nodeID string) (*Node, error) {
	if emptyString(&nodeID) {
		return nil, fmt.Errorf("nodeID cannot be empty")
	}
	endpoint := fmt.Sprintf("/v2/control-planes/%s/nodes/%s", controlPlaneID, nodeID)
	_, raw, err := s.client.doRaw(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching node %s: %w", nodeID, err)
	}
	var node Node
	if err := unmarshalPath(raw, "item", &node); err != nil {
		return nil, fmt.Errorf("fetching node %s: %w", nodeID, err)
	}
	return &node, nil
}

// Delete removes a node record from the control plane.
func (s *NodeService) Delete(ctx context.Context, controlPlaneID, nodeID string) error {
	if emptyString(&nodeID) {
		return fmt.Errorf("nodeID cannot be empty")
	}
	endpoint := fmt.Sprintf("/v2/control-planes/%s/nodes/%s", controlPlaneID, nodeID)
	_, err := s.client.do(ctx, s.client.baseURL, http.MethodDelete, endpoint, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", nodeID, err)
	}
	return nil
}
