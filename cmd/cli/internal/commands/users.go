package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/charonauth/cmd/cli/internal/accounts"
)

// UsersCmd inspects users files.
type UsersCmd struct {
	List UsersListCmd `cmd:"" help:"List accounts in a users file"`
}

// UsersListCmd lists the accounts in a users file.
type UsersListCmd struct {
	File string `arg:"" help:"Users file" type:"existingfile"`

	stdout io.Writer
}

func (c *UsersListCmd) Run(ctx context.Context, globals *Globals) error {
	stdout := c.stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	file, err := accounts.Load(c.File)
	if err != nil {
		return err
	}

	if len(file.Users) == 0 {
		fmt.Fprintln(stdout, "No users found.")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "To add one:")
		fmt.Fprintf(stdout, "  charonctl verifier <username> --append %s\n", c.File)
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tACCESS\tSALT\tFINGERPRINT")

	for _, entry := range file.Users {
		access := entry.Access
		if access == "" {
			access = "USER"
		}

		fp := "invalid"
		if verifier, err := hex.DecodeString(entry.Verifier); err == nil {
			fp = accounts.Fingerprint(verifier)
			// Truncate fingerprint for display
			if len(fp) > 12 {
				fp = fp[:12] + "..."
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Username, access, entry.Salt, fp)
	}

	return w.Flush()
}
