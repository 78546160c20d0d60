// Command catalogmigrate applies and reverts catalog schema migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roach88/catalogmigrate/internal/cli"
	"github.com/roach88/catalogmigrate/internal/config"
	_ "github.com/roach88/catalogmigrate/internal/migrations"
)

func main() {
	// A .env file in the working directory supplies CATALOGMIGRATE_* defaults.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "catalogmigrate: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
