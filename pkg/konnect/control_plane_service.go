package konnect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// ControlPlaneService reads control planes of the caller's organization.
type ControlPlaneService service

const expectedHashSchema = `{
	"type": "object",
	"required": ["expected_hash"],
	"properties": {
		"expected_hash": {"type": "string", "minLength": 1}
	}
}`

var loadExpectedHashSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(expectedHashSchema))
})

// List returns one page of control planes. The page metadata is nil when
// the reply carries none.
func (s *ControlPlaneService) List(ctx context.Context, opt *ListOpt) ([]*ControlPlane, *PageMeta, error) {
	var qs interface{}
	if opt != nil {
		qs = opt
	}
	_, raw, err := s.client.doRaw(ctx, http.MethodGet, "/v2/control-planes", qs, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("listing control planes: %w", err)
	}

	var controlPlanes []*ControlPlane
	if err := unmarshalPath(raw, "data", &controlPlanes); err != nil {
		return nil, nil, fmt.Errorf("listing control planes: %w", err)
	}
	var page *PageMeta
	if gjson.GetBytes(raw, "meta.page").Exists() {
		page = &PageMeta{}
		if err := unmarshalPath(raw, "meta.page", page); err != nil {
			return nil, nil, fmt.Errorf("listing control planes: %w", err)
		}
	}
	return controlPlanes, page, nil
}

// Get fetches a single control plane.
func (s *ControlPlaneService) Get(ctx context.Context, id string) (*ControlPlane, error) {
	if emptyString(&id) {
		return nil, fmt.Errorf("id cannot be empty")
	}
	var cp ControlPlane
	_, err := s.client.do(ctx, s.client.baseURL, http.MethodGet, "/v2/control-planes/"+id, nil, nil, &cp)
	if err != nil {
		return nil, fmt.Errorf("fetching control plane %s: %w", id, err)
	}
	return &cp, nil
}

// ExpectedConfigHash returns the hash of the configuration the control
// plane expects its data planes to run. A reply without a non-empty
// expected_hash string is an ErrMalformedResponse.
func (s *ControlPlaneService) ExpectedConfigHash(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("/v2/control-planes/%s/expected-config-hash", id)
	_, raw, err := s.client.doRaw(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return "", fmt.Errorf("fetching expected config hash: %w", err)
	}

	schema, err := loadExpectedHashSchema()
	if err != nil {
		return "", err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: expected config hash: %w", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return "", fmt.Errorf("%w: expected config hash: %s", ErrMalformedResponse, strings.Join(problems, "; "))
	}
	return gjson.GetBytes(raw, "expected_hash").String(), nil
}
