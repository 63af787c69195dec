package bootstrap

import (
	"fmt"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Context is what a bootstrap run created. It is returned by Setup and
// consumed by Teardown and by anything that needs the control plane id
// afterwards.
type Context struct {
	ControlPlaneID       string `json:"control_plane_id"`
	ControlPlaneEndpoint string `json:"control_plane_endpoint,omitempty"`
	TelemetryEndpoint    string `json:"telemetry_endpoint,omitempty"`
	CertificateID        string `json:"certificate_id,omitempty"`
	ContainerName        string `json:"container_name,omitempty"`
	WorkDir              string `json:"work_dir,omitempty"`
	NodeID               string `json:"node_id,omitempty"`
	ConfigHash           string `json:"config_hash,omitempty"`
}

// SaveContext writes c as YAML to path.
func SaveContext(fs afero.Fs, path string, c *Context) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling bootstrap context: %w", err)
	}
	if err := afero.WriteFile(fs, path, b, 0o600); err != nil {
		return fmt.Errorf("writing bootstrap context: %w", err)
	}
	return nil
}

// LoadContext reads a Context written by SaveContext.
func LoadContext(fs afero.Fs, path string) (*Context, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap context: %w", err)
	}
	var c Context
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return nil, fmt.Errorf("parsing bootstrap context %s: %w", path, err)
	}
	if c.ControlPlaneID == "" {
		return nil, fmt.Errorf("bootstrap context %s has no control_plane_id", path)
	}
	return &c, nil
}
