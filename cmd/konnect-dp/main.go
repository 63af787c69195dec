package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
)

// version can be set during build with -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rootCmd := newRootCmd()
	rootCmd.Version = version
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cprint.FailurePrintlnStdErr("Error:", err)
		cancel()
		os.Exit(1)
	}
}
