package konnect

// ControlPlane is a Konnect control plane as returned by /v2/control-planes.
type ControlPlane struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Labels      map[string]string  `json:"labels,omitempty"`
	Config      ControlPlaneConfig `json:"config"`
}

// ControlPlaneConfig holds the endpoints data planes connect to.
type ControlPlaneConfig struct {
	ControlPlaneEndpoint string `json:"control_plane_endpoint"`
	TelemetryEndpoint    string `json:"telemetry_endpoint"`
	ClusterType          string `json:"cluster_type,omitempty"`
	AuthType             string `json:"auth_type,omitempty"`
}

// Node is a data plane node that connected to a control plane.
type Node struct {
	ID         string `json:"id"`
	Hostname   string `json:"hostname,omitempty"`
	Version    string `json:"version,omitempty"`
	Type       string `json:"type,omitempty"`
	LastPing   int64  `json:"last_ping,omitempty"`
	ConfigHash string `json:"config_hash"`
}

// DPClientCertificate is a certificate pinned on a control plane. Data
// planes presenting it, with the matching key, are trusted.
type DPClientCertificate struct {
	ID   string `json:"id,omitempty"`
	Cert string `json:"cert"`
}

// OrgUserInfo describes the organization the caller belongs to.
type OrgUserInfo struct {
	Name  string `json:"name"`
	OrgID string `json:"id"`
}

// ListOpt selects a page of a Konnect collection.
type ListOpt struct {
	PageSize   int `url:"page[size],omitempty"`
	PageNumber int `url:"page[number],omitempty"`
}

// PageMeta is the pagination block of a list reply.
type PageMeta struct {
	Number int `json:"number"`
	Size   int `json:"size"`
	Total  int `json:"total"`
}
