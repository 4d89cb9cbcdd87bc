package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vsinha/batchalloc/pkg/infrastructure/config"
	"github.com/vsinha/batchalloc/pkg/infrastructure/logging"
	"github.com/vsinha/batchalloc/pkg/interfaces/cli/commands"
)

const usage = `batchalloc - assign stock batches to client demand

USAGE:
    batchalloc --requests <file> --stock <file> [--priorities <file>] [options]

Settings are read from --config, then BATCHALLOC_* environment variables
(e.g. BATCHALLOC_SOLVER_TIME_LIMIT=2m), then flags.

OPTIONS:
`

func main() {
	fs := pflag.NewFlagSet("batchalloc", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if printDefaults, _ := fs.GetBool("print-defaults"); printDefaults {
		if err := config.WriteDefaults(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(fs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet) error {
	settings, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger, err := logging.New(settings.Log.Level, settings.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.NewAllocateCommand(settings, logger, os.Stdout).Execute(ctx)
}
