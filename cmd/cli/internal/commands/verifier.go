package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/charonauth/cmd/cli/internal/accounts"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/srp"
	"github.com/wolfeidau/charonauth/internal/store/memory"
	"gopkg.in/yaml.v3"
)

// VerifierCmd derives an SRP verifier for an account.
type VerifierCmd struct {
	Username string `arg:"" help:"Account username"`
	Password string `help:"Account password (read from stdin when empty)" env:"CHARON_PASSWORD"`
	Salt     string `help:"Hex salt to use instead of a random one"`
	Access   string `help:"Access level" default:"USER" enum:"OWNER,MASTER,OP,USER,UNVERIFIED"`
	Group    string `help:"SRP group" default:"2048" enum:"2048"`
	Append   string `help:"Append the entry to this users file" type:"path"`

	stdin  io.Reader
	stdout io.Writer
}

func (c *VerifierCmd) Run(ctx context.Context, globals *Globals) error {
	stdin, stdout := c.streams()

	group, err := srp.GroupByName(c.Group)
	if err != nil {
		return err
	}

	password, err := readPassword(c.Password, stdin)
	if err != nil {
		return err
	}

	var salt []byte
	if c.Salt != "" {
		if salt, err = hex.DecodeString(c.Salt); err != nil {
			return fmt.Errorf("invalid --salt: %w", err)
		}
	}

	entry, err := accounts.NewEntry(group, c.Username, password, salt, models.AccessLevel(c.Access))
	if err != nil {
		return err
	}

	verifier, _ := hex.DecodeString(entry.Verifier)

	fmt.Fprintf(stdout, "# username:    %s\n", entry.Username)
	fmt.Fprintf(stdout, "# salt:        %s\n", entry.Salt)
	fmt.Fprintf(stdout, "# fingerprint: %s\n", accounts.Fingerprint(verifier))

	out, err := yaml.Marshal(memory.UsersFile{Users: []memory.UserEntry{entry}})
	if err != nil {
		return err
	}
	if _, err := stdout.Write(out); err != nil {
		return err
	}

	if c.Append != "" {
		if err := accounts.Append(c.Append, entry); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "# appended to %s\n", c.Append)
	}

	return nil
}

func (c *VerifierCmd) streams() (io.Reader, io.Writer) {
	stdin, stdout := c.stdin, c.stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return stdin, stdout
}
