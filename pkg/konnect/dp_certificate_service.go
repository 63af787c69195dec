package konnect

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// DPCertificateService pins data plane client certificates on a control
// plane.
type DPCertificateService service

// Create pins cert on the control plane. Konnect must answer 201; any
// other status is returned as an error and the call is not retried.
// The returned ID is empty when the reply does not carry one.
func (s *DPCertificateService) Create(
	ctx context.Context, controlPlaneID string, cert string,
) (*DPClientCertificate, error) {
	if emptyString(&controlPlaneID) {
		return nil, fmt.Errorf("controlPlaneID cannot be empty")
	}
	if emptyString(&cert) {
		return nil, fmt.Errorf("cert cannot be empty")
	}
	endpoint := fmt.Sprintf("/v2/control-planes/%s/dp-client-certificates", controlPlaneID)
	resp, raw, err := s.client.doRaw(ctx, http.MethodPost, endpoint, nil, &DPClientCertificate{Cert: cert})
	if err != nil {
		return nil, fmt.Errorf("pinning data plane certificate: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &StatusError{
			Method: http.MethodPost,
			URL:    resp.Request.URL.String(),
			Status: resp.StatusCode,
			Want:   http.StatusCreated,
		}
	}

	created := &DPClientCertificate{Cert: cert}
	if item := gjson.GetBytes(raw, "item.id"); item.Exists() {
		created.ID = item.String()
	}
	return created, nil
}

// Delete unpins a previously created certificate.
func (s *DPCertificateService) Delete(ctx context.Context, controlPlaneID, certificateID string) error {
	if emptyString(&certificateID) {
		return fmt.Errorf("certificateID cannot be empty")
	}
	endpoint := fmt.Sprintf("/v2/control-planes/%s/dp-client-certificates/%s", controlPlaneID, certificateID)
	_, err := s.client.do(ctx, s.client.baseURL, http.MethodDelete, endpoint, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("deleting data plane certificate %s: %w", certificateID, err)
	}
	return nil
}
