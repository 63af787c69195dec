package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kong/go-dataplane-bootstrap/pkg/bootstrap"
	"github.com/kong/go-dataplane-bootstrap/pkg/config"
	"github.com/kong/go-dataplane-bootstrap/pkg/converge"
	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
	"github.com/kong/go-dataplane-bootstrap/pkg/dataplane"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
)

// flags override the environment configuration when set.
type flags struct {
	address     string
	image       string
	name        string
	workDir     string
	dpVersion   string
	network     string
	contextFile string
	quiet       bool
	noColor     bool
}

type app struct {
	flags  flags
	cfg    *config.Config
	logger zerolog.Logger
	fs     afero.Fs
}

func newRootCmd() *cobra.Command {
	a := &app{fs: afero.NewOsFs()}

	rootCmd := &cobra.Command{
		Use:   "konnect-dp",
		Short: "Bootstrap a data plane against a Konnect control plane",
		Long: `konnect-dp pins a fresh client certificate on the only control plane of
your Konnect organization, starts a data plane container with it and waits
until the data plane runs the control plane's configuration.

Settings are read from KONNECT_* environment variables; flags take precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.address, "konnect-addr", "", "Konnect API address (KONNECT_ADDR)")
	pf.StringVar(&a.flags.workDir, "workdir", "", "directory of the generated certificate files (KONNECT_WORKDIR)")
	pf.StringVar(&a.flags.network, "network", "", "docker network of the data plane container")
	pf.StringVarP(&a.flags.contextFile, "context", "c", "konnect-dp.yaml", "bootstrap context file")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "suppress progress output")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(a.newSetupCmd(), a.newTeardownCmd())
	return rootCmd
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	if a.flags.noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	cprint.DisableOutput = a.flags.quiet

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.flags.address != "" {
		cfg.Address = a.flags.address
	}
	if a.flags.workDir != "" {
		cfg.WorkDir = a.flags.workDir
	}
	if cmd.Flags().Changed("image") {
		cfg.DataPlaneImage = a.flags.image
	}
	if cmd.Flags().Changed("name") {
		cfg.DataPlaneName = a.flags.name
	}
	if cmd.Flags().Changed("dp-version") {
		cfg.DataPlaneVersion = a.flags.dpVersion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}

func (a *app) bootstrapper() (*bootstrap.Bootstrapper, error) {
	client, err := konnect.NewClient(a.cfg.ClientOpts(a.logger))
	if err != nil {
		return nil, fmt.Errorf("creating konnect client: %w", err)
	}
	launcher, err := dataplane.NewDockerLauncher(dataplane.DockerOptions{Network: a.flags.network}, a.logger)
	if err != nil {
		return nil, err
	}
	workDir, err := a.workDir()
	if err != nil {
		return nil, err
	}
	policy := a.cfg.Policy()
	return bootstrap.New(bootstrap.Options{
		Client:         client,
		Launcher:       launcher,
		Fs:             a.fs,
		WorkDir:        workDir,
		DataPlaneImage: a.cfg.Image(),
		DataPlaneName:  a.cfg.DataPlaneName,
		Poller: converge.PollerOpts{
			NodePolicy:        policy,
			HashPolicy:        policy,
			VersionConstraint: a.cfg.DataPlaneVersion,
		},
		ShowOrgInfo: true,
		Logger:      a.logger,
	})
}

// workDir returns the configured certificate directory, or a new
// temporary one so existing files are never overwritten.
func (a *app) workDir() (string, error) {
	if a.cfg.WorkDir != "" {
		return a.cfg.WorkDir, nil
	}
	dir, err := afero.TempDir(a.fs, "", "konnect-dp-")
	if err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	return dir, nil
}
