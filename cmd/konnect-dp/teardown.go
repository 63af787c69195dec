package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kong/go-dataplane-bootstrap/pkg/bootstrap"
	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
)

func (a *app) newTeardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Remove what setup created",
		Long: `teardown stops the data plane container, unpins its certificate and removes
the certificate files recorded in the context file, then the context file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bc, err := bootstrap.LoadContext(a.fs, a.flags.contextFile)
			if err != nil {
				return err
			}
			b, err := a.bootstrapper()
			if err != nil {
				return err
			}
			if err := b.Teardown(cmd.Context(), bc); err != nil {
				return err
			}
			if err := a.fs.Remove(a.flags.contextFile); err != nil {
				return fmt.Errorf("removing context file: %w", err)
			}
			cprint.SuccessPrintln("data plane", bc.ContainerName, "torn down")
			return nil
		},
	}
}
