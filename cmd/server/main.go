package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/charonauth/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Config  kong.ConfigFlag   `help:"Load flag values from a YAML file."`
		Serve   commands.ServeCmd `cmd:"" default:"withargs" help:"Start the authentication server"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("charonauth-server"),
		kong.Description("SRP-6a authentication server for charon game clients."),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(commands.YAML),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	if err != nil {
		cmd.Errorf("%s", err)
		os.Exit(commands.ExitCode(err))
	}
}
