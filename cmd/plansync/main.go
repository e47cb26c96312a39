package main

import (
	"errors"
	"fmt"
	"os"

	app "github.com/valter-silva-au/plansync/internal"
	"github.com/valter-silva-au/plansync/internal/cli"
	"github.com/valter-silva-au/plansync/internal/core"
	"github.com/valter-silva-au/plansync/internal/storage"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersionInfo(version, commit, date)
	cli.RepoInit = core.NewRepoInitializer(storage.NewPlanStore())

	var instance *app.App
	cli.Initializer = func(repoRoot, configFile string) error {
		a, err := app.NewApp(repoRoot, configFile)
		if err != nil {
			return err
		}
		instance = a
		return nil
	}
	defer func() {
		if instance != nil {
			_ = instance.Close()
		}
	}()

	if err := cli.Execute(); err != nil {
		var exitErr *cli.ExitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
