package dataplane

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DockerOptions configures DockerLauncher. Unset fields take the values
// of DefaultDockerOptions.
type DockerOptions struct {
	// Binary is the docker CLI to invoke.
	Binary string
	// Network attaches the container to a docker network.
	Network string
	// Ports are docker -p mappings.
	Ports []string
	// Labels are reported by the node to Konnect as KONG_CLUSTER_DP_LABELS.
	Labels []string
	// Env is extra KONG_* configuration for the data plane.
	Env map[string]string
	// Runner executes the docker CLI.
	Runner Runner
}

// DefaultDockerOptions returns the options used for unset fields.
func DefaultDockerOptions() DockerOptions {
	return DockerOptions{
		Binary: "docker",
		Ports:  []string{"8000:8000", "8443:8443"},
		Labels: []string{"created-by:go-dataplane-bootstrap"},
	}
}

// DockerLauncher runs data planes as local docker containers.
type DockerLauncher struct {
	opts   DockerOptions
	logger zerolog.Logger
}

var _ Launcher = (*DockerLauncher)(nil)

// NewDockerLauncher returns a DockerLauncher with opts merged over
// DefaultDockerOptions.
func NewDockerLauncher(opts DockerOptions, logger zerolog.Logger) (*DockerLauncher, error) {
	runner := opts.Runner
	opts.Runner = nil
	if err := mergo.Merge(&opts, DefaultDockerOptions()); err != nil {
		return nil, fmt.Errorf("merging docker options: %w", err)
	}
	if runner == nil {
		runner = execRunner{}
	}
	opts.Runner = runner
	return &DockerLauncher{opts: opts, logger: logger}, nil
}

// Launch starts a detached container running spec.Image in hybrid data
// plane mode.
func (d *DockerLauncher) Launch(ctx context.Context, spec Spec) error {
	if err := validate(spec); err != nil {
		return err
	}
	args := d.runArgs(spec)
	d.logger.Debug().Str("container", spec.Name).Str("image", spec.Image).Msg("starting data plane container")
	out, err := d.opts.Runner.Run(ctx, d.opts.Binary, args...)
	if err != nil {
		return fmt.Errorf("starting data plane container %s: %w: %s", spec.Name, err, strings.TrimSpace(string(out)))
	}
	d.logger.Info().Str("container", spec.Name).Str("id", strings.TrimSpace(string(out))).Msg("data plane container started")
	return nil
}

// Stop force-removes the container. A container that does not exist is
// already stopped.
func (d *DockerLauncher) Stop(ctx context.Context, name string) error {
	out, err := d.opts.Runner.Run(ctx, d.opts.Binary, "rm", "-f", name)
	if err != nil {
		if strings.Contains(string(out), "No such container") {
			return nil
		}
		return fmt.Errorf("removing data plane container %s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	d.logger.Info().Str("container", name).Msg("data plane container removed")
	return nil
}

func validate(spec Spec) error {
	var missing []string
	for field, value := range map[string]string{
		"name":                   spec.Name,
		"image":                  spec.Image,
		"control plane endpoint": spec.ControlPlaneEndpoint,
		"telemetry endpoint":     spec.TelemetryEndpoint,
		"certificate":            spec.CertificatePEM,
		"private key":            spec.PrivateKeyPEM,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return errors.New("data plane spec is missing " + strings.Join(missing, ", "))
	}
	return nil
}

func (d *DockerLauncher) runArgs(spec Spec) []string {
	args := []string{"run", "-d", "--name", spec.Name}
	if d.opts.Network != "" {
		args = append(args, "--network", d.opts.Network)
	}

	env := [][2]string{
		{"KONG_ROLE", "data_plane"},
		{"KONG_DATABASE", "off"},
		{"KONG_VITALS", "off"},
		{"KONG_KONNECT_MODE", "on"},
		{"KONG_CLUSTER_MTLS", "pki"},
		{"KONG_CLUSTER_CONTROL_PLANE", spec.ControlPlaneEndpoint},
		{"KONG_CLUSTER_SERVER_NAME", serverName(spec.ControlPlaneEndpoint)},
		{"KONG_CLUSTER_TELEMETRY_ENDPOINT", spec.TelemetryEndpoint},
		{"KONG_CLUSTER_TELEMETRY_SERVER_NAME", serverName(spec.TelemetryEndpoint)},
		{"KONG_CLUSTER_CERT", spec.CertificatePEM},
		{"KONG_CLUSTER_CERT_KEY", spec.PrivateKeyPEM},
		{"KONG_LUA_SSL_TRUSTED_CERTIFICATE", "system"},
	}
	if len(d.opts.Labels) > 0 {
		env = append(env, [2]string{"KONG_CLUSTER_DP_LABELS", strings.Join(d.opts.Labels, ",")})
	}
	keys := lo.Keys(d.opts.Env)
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, [2]string{k, d.opts.Env[k]})
	}
	for _, kv := range env {
		args = append(args, "-e", kv[0]+"="+kv[1])
	}
	for _, p := range d.opts.Ports {
		args = append(args, "-p", p)
	}
	return append(args, spec.Image)
}
