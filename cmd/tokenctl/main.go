// tokenctl is an operator tool for tokenguard deployments. It mints and
// inspects access tokens with the service secret, hashes passwords the way
// the server stores them and generates new secret salts.
//
//	tokenctl gen-salt
//	tokenctl hash-password [--stdin]
//	tokenctl issue --user-id ID [--first-name N] [--last-name N] [--duration 1h]
//	tokenctl inspect TOKEN
//
// issue and inspect read the secret from --secret or SECRET_SALT.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/tokenguard/internal/timex"
)

func main() {
	c := &cli{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		clock:  timex.Real(),
	}
	if err := c.run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}
}

var errUsage = errors.New("usage")

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	clock  timex.Clock
}

func (c *cli) run(args []string) error {
	if len(args) == 0 {
		c.usage()
		return errUsage
	}

	switch args[0] {
	case "gen-salt":
		return c.genSalt(args[1:])
	case "hash-password":
		return c.hashPassword(args[1:])
	case "issue":
		return c.issue(args[1:])
	case "inspect":
		return c.inspect(args[1:])
	case "help", "-h", "--help":
		c.usage()
		return nil
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n", args[0])
		c.usage()
		return errUsage
	}
}

func (c *cli) usage() {
	fmt.Fprint(c.stderr, `Usage: tokenctl <command> [flags]

Commands:
  gen-salt        print a new base64 secret salt
  hash-password   hash a password into the stored hash and salt
  issue           mint an access token for a user id
  inspect         verify a token and print its contents
`)
}
