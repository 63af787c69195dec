package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/kong/go-dataplane-bootstrap/pkg/bootstrap"
	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
)

// cleanupTimeout bounds the teardown that follows a failed setup.
const cleanupTimeout = 2 * time.Minute

// teardowner is the part of bootstrap.Bootstrapper used after setup.
type teardowner interface {
	Teardown(ctx context.Context, bc *bootstrap.Context) error
}

func (a *app) newSetupCmd() *cobra.Command {
	var keepOnFailure bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Start a data plane and wait for it to converge",
		Long: `setup locates the control plane, pins a new client certificate, starts the
data plane container and waits until it reports the control plane's expected
configuration hash. What was created is recorded in the context file, which
teardown consumes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.bootstrapper()
			if err != nil {
				return err
			}
			bc, setupErr := b.Setup(cmd.Context())
			return a.finishSetup(cmd.Context(), b, bc, setupErr, keepOnFailure)
		},
	}
	cmd.Flags().StringVar(&a.flags.image, "image", "", "data plane image (KONNECT_DP_IMAGE)")
	cmd.Flags().StringVar(&a.flags.name, "name", "", "data plane container name (KONNECT_DP_NAME)")
	cmd.Flags().StringVar(&a.flags.dpVersion, "dp-version", "",
		"semver range the converged data plane must satisfy (KONNECT_DP_VERSION)")
	cmd.Flags().BoolVar(&keepOnFailure, "keep-on-failure", false,
		"keep the container and pinned certificate when setup fails")
	return cmd
}

// finishSetup records bc in the context file, or tears it down when
// setup failed. Teardown outlives the cancellation of ctx, which is how
// an interrupted setup ends. The context file is still written when
// teardown fails so that a later teardown can finish the job.
func (a *app) finishSetup(
	ctx context.Context, b teardowner, bc *bootstrap.Context, setupErr error, keepOnFailure bool,
) error {
	if bc == nil {
		return setupErr
	}
	if setupErr != nil && !keepOnFailure {
		cprint.WarnPrintln("setup failed, tearing down")
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		teardownErr := b.Teardown(cleanupCtx, bc)
		if teardownErr == nil {
			return setupErr
		}
		if err := bootstrap.SaveContext(a.fs, a.flags.contextFile, bc); err != nil {
			return errors.Join(setupErr, teardownErr, err)
		}
		cprint.WarnPrintln("teardown incomplete, run teardown with", a.flags.contextFile)
		return errors.Join(setupErr, teardownErr)
	}
	if err := bootstrap.SaveContext(a.fs, a.flags.contextFile, bc); err != nil {
		return errors.Join(setupErr, err)
	}
	if setupErr == nil {
		cprint.SuccessPrintln("bootstrap context written to", a.flags.contextFile)
	}
	return setupErr
}
