// Package bootstrap stands up a data plane against a Konnect control
// plane and waits until it runs the control plane's configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/kong/go-dataplane-bootstrap/pkg/certificate"
	"github.com/kong/go-dataplane-bootstrap/pkg/converge"
	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
	"github.com/kong/go-dataplane-bootstrap/pkg/dataplane"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/utils"
)

// Options configures a Bootstrapper.
type Options struct {
	Client   *konnect.Client
	Launcher dataplane.Launcher

	// Fs holds the generated certificate files, the OS filesystem when nil.
	Fs afero.Fs
	// WorkDir is where certificate files are written.
	WorkDir     string
	Certificate certificate.Options

	// DataPlaneImage defaults to dataplane.DefaultImage.
	DataPlaneImage string
	// DataPlaneName defaults to a random "konnect-dp-" name.
	DataPlaneName string

	Poller converge.PollerOpts

	// ShowOrgInfo prints the organization of the caller before starting.
	ShowOrgInfo bool

	Logger zerolog.Logger
}

// Bootstrapper runs the bootstrap sequence.
type Bootstrapper struct {
	client    *konnect.Client
	locator   *Locator
	registrar *Registrar
	launcher  dataplane.Launcher
	poller    *converge.Poller

	fs          afero.Fs
	workDir     string
	certOpts    certificate.Options
	image       string
	name        string
	showOrgInfo bool

	logger zerolog.Logger
}

// New returns a Bootstrapper for opts.
func New(opts Options) (*Bootstrapper, error) {
	if opts.Client == nil {
		return nil, errors.New("konnect client is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("data plane launcher is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.DataPlaneImage == "" {
		opts.DataPlaneImage = dataplane.DefaultImage
	}
	if opts.DataPlaneName == "" {
		opts.DataPlaneName = "konnect-dp-" + utils.UUID()[:8]
	}
	opts.Poller.Logger = opts.Logger
	poller, err := converge.NewPoller(opts.Client, opts.Poller)
	if err != nil {
		return nil, err
	}
	return &Bootstrapper{
		client:      opts.Client,
		locator:     NewLocator(opts.Client),
		registrar:   NewRegistrar(opts.Client),
		launcher:    opts.Launcher,
		poller:      poller,
		fs:          opts.Fs,
		workDir:     opts.WorkDir,
		certOpts:    opts.Certificate,
		image:       opts.DataPlaneImage,
		name:        opts.DataPlaneName,
		showOrgInfo: opts.ShowOrgInfo,
		logger:      opts.Logger,
	}, nil
}

// Setup locates the control plane, pins a fresh client certificate on
// it, launches a data plane with that identity and waits for the data
// plane to converge. Steps run in order and the first failure aborts the
// sequence.
//
// On error the returned Context records what was created so far, so it
// can be handed to Teardown. It is nil when nothing was created.
func (b *Bootstrapper) Setup(ctx context.Context) (*Context, error) {
	cprint.StepPrintf("locating control plane\n")
	endpoints, err := b.locator.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("locating control plane: %w", err)
	}
	bc := &Context{
		ControlPlaneID:       endpoints.ControlPlaneID,
		ControlPlaneEndpoint: endpoints.ControlPlaneEndpoint,
		TelemetryEndpoint:    endpoints.TelemetryEndpoint,
	}
	b.logger.Info().Str("control_plane_id", bc.ControlPlaneID).Msg("control plane located")
	cprint.SuccessPrintf("control plane %s at %s\n", bc.ControlPlaneID, bc.ControlPlaneEndpoint)

	if b.showOrgInfo {
		b.printOrgInfo(ctx)
	}

	cprint.StepPrintf("generating data plane certificate\n")
	store := certificate.NewStore(b.fs, b.workDir)
	bc.WorkDir = store.Dir()
	cert, err := b.writeCertificate(store)
	if err != nil {
		return bc, err
	}

	cprint.StepPrintf("pinning data plane certificate\n")
	pinned, err := b.registrar.Register(ctx, bc.ControlPlaneID, cert.CertificatePEM)
	if err != nil {
		return bc, fmt.Errorf("pinning data plane certificate: %w", err)
	}
	bc.CertificateID = pinned.ID
	if pinned.ID == "" {
		b.logger.Warn().Str("control_plane_id", bc.ControlPlaneID).
			Msg("pinning reply carried no certificate id, teardown cannot unpin it")
		cprint.WarnPrintln("certificate pinned without an id, unpin it manually after teardown")
	} else {
		b.logger.Info().Str("certificate_id", pinned.ID).Msg("data plane certificate pinned")
	}

	cprint.StepPrintf("launching data plane %s\n", b.name)
	err = b.launcher.Launch(ctx, dataplane.Spec{
		Name:                 b.name,
		Image:                b.image,
		ControlPlaneEndpoint: bc.ControlPlaneEndpoint,
		TelemetryEndpoint:    bc.TelemetryEndpoint,
		CertificatePEM:       string(cert.CertificatePEM),
		PrivateKeyPEM:        string(cert.PrivateKeyPEM),
	})
	if err != nil {
		return bc, fmt.Errorf("launching data plane: %w", err)
	}
	bc.ContainerName = b.name

	cprint.StepPrintf("waiting for data plane to converge\n")
	state, err := b.poller.Run(ctx, bc.ControlPlaneID)
	bc.NodeID = state.NodeID
	bc.ConfigHash = state.LastSeenHash
	if err != nil {
		return bc, fmt.Errorf("waiting for data plane: %w", err)
	}
	cprint.SuccessPrintf("data plane node %s converged on config hash %s\n", bc.NodeID, bc.ConfigHash)
	return bc, nil
}

// writeCertificate generates a certificate into store and returns it as
// read back from disk, which is what the data plane mounts.
func (b *Bootstrapper) writeCertificate(store *certificate.Store) (*certificate.ClientCertificate, error) {
	generated, err := certificate.Generate(b.certOpts)
	if err != nil {
		return nil, fmt.Errorf("generating data plane certificate: %w", err)
	}
	if err := store.Write(generated); err != nil {
		return nil, err
	}
	cert, err := store.Read()
	if err != nil {
		return nil, err
	}
	b.logger.Debug().
		Str("certificate", store.Path(certificate.CertificateFile)).
		Str("key", store.Path(certificate.PrivateKeyFile)).
		Msg("data plane certificate written")
	return cert, nil
}

func (b *Bootstrapper) printOrgInfo(ctx context.Context) {
	info, err := b.client.Auth.OrgUserInfo(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("fetching organization info")
		cprint.WarnPrintln("could not fetch organization info:", err)
		return
	}
	cprint.SuccessPrintf("organization %s (%s)\n", info.Name, info.OrgID)
}

// Teardown stops the data plane and forgets its node, unpins its
// certificate and removes the certificate files recorded in bc. The
// steps are independent; all of them run and their errors are joined.
func (b *Bootstrapper) Teardown(ctx context.Context, bc *Context) error {
	if bc == nil {
		return nil
	}
	errs := make([]error, 3)
	var g errgroup.Group
	if bc.ContainerName != "" {
		g.Go(func() error {
			if err := b.launcher.Stop(ctx, bc.ContainerName); err != nil {
				errs[0] = fmt.Errorf("stopping data plane: %w", err)
				return nil
			}
			// a stopped node would otherwise linger in the node listing
			if bc.NodeID != "" {
				if err := b.client.Nodes.Delete(ctx, bc.ControlPlaneID, bc.NodeID); err != nil {
					errs[0] = fmt.Errorf("forgetting node: %w", err)
				}
			}
			return nil
		})
	}
	if bc.CertificateID != "" {
		g.Go(func() error {
			if err := b.registrar.Unregister(ctx, bc.ControlPlaneID, bc.CertificateID); err != nil {
				errs[1] = fmt.Errorf("unpinning data plane certificate: %w", err)
			}
			return nil
		})
	}
	if bc.WorkDir != "" {
		g.Go(func() error {
			errs[2] = certificate.NewStore(b.fs, bc.WorkDir).Remove()
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.logger.Info().Str("control_plane_id", bc.ControlPlaneID).Msg("bootstrap torn down")
	return nil
}
