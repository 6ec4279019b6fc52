package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Globals struct {
	Debug   bool
	Version string
}

// readPassword returns flagValue, or the first line of r when it is empty.
func readPassword(flagValue string, r io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required (--password, CHARON_PASSWORD or stdin)")
	}
	return password, nil
}
