package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/charonauth/cmd/cli/internal/accounts"
	"github.com/wolfeidau/charonauth/internal/client"
)

// LoginCmd runs a full handshake against a server.
type LoginCmd struct {
	Username string        `arg:"" help:"Account username"`
	Password string        `help:"Account password (read from stdin when empty)" env:"CHARON_PASSWORD"`
	Server   string        `help:"Server address" default:"127.0.0.1:16666" env:"CHARON_SERVER"`
	Timeout  time.Duration `help:"Timeout waiting for each reply" default:"2s"`
	Retries  uint          `help:"Handshake attempts before giving up" default:"3"`

	stdin  io.Reader
	stdout io.Writer
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	stdin, stdout := c.stdin, c.stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	password, err := readPassword(c.Password, stdin)
	if err != nil {
		return err
	}

	cl := client.New(client.Config{
		Server:   c.Server,
		Timeout:  c.Timeout,
		MaxTries: c.Retries,
	})

	res, err := cl.Authenticate(ctx, c.Username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintf(stdout, "Authenticated as %s\n", res.Username)
	fmt.Fprintf(stdout, "  session:     %d\n", res.Session)
	fmt.Fprintf(stdout, "  key:         %s\n", accounts.Fingerprint(res.SessionKey))
	fmt.Fprintf(stdout, "  attempts:    %d\n", res.Attempts)
	return nil
}
