package dataplane

import (
	"context"
	"net"
)

// DefaultImage is the data plane image used when none is configured.
const DefaultImage = "kong/kong-gateway-dev:nightly-ubuntu"

// Spec is everything needed to start a data plane that connects to a
// Konnect control plane with a pinned client certificate.
type Spec struct {
	// Name identifies the running data plane, e.g. its container name.
	Name                 string
	Image                string
	ControlPlaneEndpoint string
	TelemetryEndpoint    string
	CertificatePEM       string
	PrivateKeyPEM        string
}

// Launcher starts and stops data planes out of process. Launch returns
// once the data plane was started; it does not wait for the data plane
// to connect to its control plane.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) error
	Stop(ctx context.Context, name string) error
}

// serverName returns the host part of a host:port endpoint, used as the
// TLS server name of the cluster connection.
func serverName(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	return host
}
