package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/cmd/cli/internal/commands"
	"github.com/wolfeidau/charonauth/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Verifier commands.VerifierCmd `cmd:"" help:"Derive an SRP salt and verifier for an account"`
		Login    commands.LoginCmd    `cmd:"" help:"Authenticate against a server"`
		Users    commands.UsersCmd    `cmd:"" help:"Inspect users files"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("charonctl"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)
	if !cli.Debug {
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
