package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/modgrid/internal/app"
	"github.com/vk/modgrid/internal/cli"
	"github.com/vk/modgrid/internal/fault"
)

// main is the entrypoint for the modgrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(fault.ExitStartup)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	modgrid, err := app.NewApp(ctx, outW, appConfig)
	if err != nil {
		return &cli.ExitError{Code: fault.ExitStartup, Message: fmt.Sprintf("application startup failed: %v", err)}
	}

	out := modgrid.Run(ctx)
	if cerr := modgrid.Close(); cerr != nil {
		slog.Warn("Shutdown was not clean.", "error", cerr)
	}

	if out.Err != nil {
		return &cli.ExitError{
			Code:    out.ExitCode,
			Message: fmt.Sprintf("run %s of module '%s' failed at stage %s (%s): %v", out.RunID, out.ModuleID, out.Stage, fault.KindName(out.Err), out.Err),
		}
	}
	return nil
}
