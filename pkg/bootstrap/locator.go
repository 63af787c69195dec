package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/utils"
)

var (
	// ErrNoControlPlane is returned when the organization has no control plane.
	ErrNoControlPlane = errors.New("no control plane found in the organization")
	// ErrMultipleControlPlanes is returned when the organization has more
	// than one control plane and the one to bootstrap against is ambiguous.
	ErrMultipleControlPlanes = errors.New("more than one control plane found in the organization")
)

// Endpoints are the connection details of a control plane, as bare
// host:port pairs.
type Endpoints struct {
	ControlPlaneID       string
	ControlPlaneEndpoint string
	TelemetryEndpoint    string
}

// Locator resolves the single control plane of the caller's organization.
type Locator struct {
	client *konnect.Client
}

// NewLocator returns a Locator listing control planes through client.
func NewLocator(client *konnect.Client) *Locator {
	return &Locator{client: client}
}

// Locate returns the endpoints of the organization's only control plane.
// Zero or several control planes are fatal.
func (l *Locator) Locate(ctx context.Context) (*Endpoints, error) {
	// two entries are enough to tell "one" from "many"
	controlPlanes, page, err := l.client.ControlPlanes.List(ctx, &konnect.ListOpt{PageSize: 2})
	if err != nil {
		return nil, err
	}
	count := len(controlPlanes)
	if page != nil && page.Total > count {
		count = page.Total
	}
	switch {
	case count == 0:
		return nil, ErrNoControlPlane
	case count > 1:
		return nil, fmt.Errorf("%w: got %d", ErrMultipleControlPlanes, count)
	}
	if len(controlPlanes) == 0 {
		return nil, fmt.Errorf("%w: listing reports %d control plane but returned none",
			konnect.ErrMalformedResponse, count)
	}

	cp := controlPlanes[0]
	if cp == nil || !utils.IsUUID(cp.ID) {
		id := ""
		if cp != nil {
			id = cp.ID
		}
		return nil, fmt.Errorf("%w: control plane id %q is not a UUID", konnect.ErrMalformedResponse, id)
	}
	if cp.Config.ControlPlaneEndpoint == "" || cp.Config.TelemetryEndpoint == "" {
		return nil, fmt.Errorf("%w: control plane %s has no control plane or telemetry endpoint",
			konnect.ErrMalformedResponse, cp.ID)
	}
	return &Endpoints{
		ControlPlaneID:       cp.ID,
		ControlPlaneEndpoint: stripScheme(cp.Config.ControlPlaneEndpoint),
		TelemetryEndpoint:    stripScheme(cp.Config.TelemetryEndpoint),
	}, nil
}

// stripScheme turns "https://host:443" into "host:443".
func stripScheme(endpoint string) string {
	if _, rest, found := strings.Cut(endpoint, "://"); found {
		return rest
	}
	return endpoint
}
