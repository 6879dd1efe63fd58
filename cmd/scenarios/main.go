// Package main provides a CLI that seeds scenarios and writes their database
// snapshots as XML files.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	scenarioscmd "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/cmd/scenarios"
	entrypoint "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/cmd"
	"github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/config"
	apperrors "github.com/apsys-mx/apsys-backend-development-guides-sub003/internal/platform/errors"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	cfg, err := scenarioscmd.ParseConfig(fs, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceScenarios, func(ctx context.Context) error {
		return scenarioscmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	})
	if err != nil {
		stop()
		config.ExitCodef(apperrors.ExitCode(err), "Error: %v", err)
	}
}
