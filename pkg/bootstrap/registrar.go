package bootstrap

import (
	"context"

	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
)

// Registrar pins data plane client certificates on a control plane.
type Registrar struct {
	client *konnect.Client
}

// NewRegistrar returns a Registrar pinning certificates through client.
func NewRegistrar(client *konnect.Client) *Registrar {
	return &Registrar{client: client}
}

// Register pins certPEM, as is, on controlPlaneID. Any reply other than
// 201 Created is an error; registration is attempted once.
func (r *Registrar) Register(
	ctx context.Context, controlPlaneID string, certPEM []byte,
) (*konnect.DPClientCertificate, error) {
	return r.client.DPCertificates.Create(ctx, controlPlaneID, string(certPEM))
}

// Unregister removes a certificate pinned by Register.
func (r *Registrar) Unregister(ctx context.Context, controlPlaneID, certificateID string) error {
	return r.client.DPCertificates.Delete(ctx, controlPlaneID, certificateID)
}
