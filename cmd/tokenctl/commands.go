package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/mac"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

const defaultDuration = time.Hour

func (c *cli) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// parse runs fs.Parse and folds pflag.ErrHelp into errUsage.
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return err
	}
	return nil
}

func (c *cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) codec(secret string) (*token.Codec, error) {
	if secret == "" {
		secret = c.getenv("SECRET_SALT")
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: secret not set, use --secret or SECRET_SALT", common.ErrInvalidSalt)
	}
	salt, err := mac.DecodeSalt(secret)
	if err != nil {
		return nil, err
	}
	return token.NewCodec(salt)
}

func (c *cli) genSalt(args []string) error {
	fs := c.flagSet("gen-salt")
	if err := parse(fs, args); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, mac.NewSalt())
	return nil
}

func (c *cli) hashPassword(args []string) error {
	fs := c.flagSet("hash-password")
	fromStdin := fs.Bool("stdin", false, "read the password as a single line from standard input")
	if err := parse(fs, args); err != nil {
		return err
	}

	var password []byte
	if *fromStdin {
		line, err := bufio.NewReader(c.stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = []byte(strings.TrimRight(line, "\r\n"))
	} else {
		fmt.Fprint(c.stderr, "Enter password: ")
		pw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(c.stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = pw
	}
	defer common.WipeByteArray(password)

	if len(password) == 0 {
		return errors.New("empty password")
	}

	hash, salt := mac.HashPassword(string(password))
	return c.writeJSON(map[string]string{
		"password_hash": hash,
		"password_salt": salt,
	})
}

func (c *cli) issue(args []string) error {
	fs := c.flagSet("issue")
	secret := fs.StringP("secret", "s", "", "base64 secret salt (default $SECRET_SALT)")
	userID := fs.StringP("user-id", "u", "", "user id the token is issued for")
	firstName := fs.String("first-name", "", "first name carried in the token")
	lastName := fs.String("last-name", "", "last name carried in the token")
	duration := fs.DurationP("duration", "d", defaultDuration, "soft lifetime; the hard limit is twice this")
	if err := parse(fs, args); err != nil {
		return err
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		return fmt.Errorf("--user-id: %w", err)
	}
	if *duration < time.Second || *duration%time.Second != 0 {
		return errors.New("--duration must be a whole number of seconds, at least 1s")
	}

	codec, err := c.codec(*secret)
	if err != nil {
		return err
	}

	identity := token.Identity{UserID: id}
	if fs.Changed("first-name") {
		identity.FirstName = firstName
	}
	if fs.Changed("last-name") {
		identity.LastName = lastName
	}

	resp, err := codec.Encode(token.NewIssuer(*duration, c.clock).Issue(identity))
	if err != nil {
		return err
	}
	return c.writeJSON(resp)
}

type inspectOutput struct {
	token.Identity
	ExpiresAt time.Time `json:"expires_at"`
	RefreshAt time.Time `json:"refresh_at"`
	State     string    `json:"state"`
}

// tokenState names where now falls relative to the token's two deadlines.
func tokenState(inner token.InnerToken, now time.Time) string {
	switch {
	case now.Before(inner.ExpiresAt):
		return "fresh"
	case now.Before(inner.RefreshAt):
		return "refreshable"
	default:
		return "expired"
	}
}

func (c *cli) inspect(args []string) error {
	fs := c.flagSet("inspect")
	secret := fs.StringP("secret", "s", "", "base64 secret salt (default $SECRET_SALT)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "inspect takes exactly one token")
		return errUsage
	}

	codec, err := c.codec(*secret)
	if err != nil {
		return err
	}

	inner, err := codec.Decode(fs.Arg(0))
	if err != nil {
		return err
	}

	return c.writeJSON(inspectOutput{
		Identity:  inner.Identity,
		ExpiresAt: inner.ExpiresAt,
		RefreshAt: inner.RefreshAt,
		State:     tokenState(inner, c.clock.Now()),
	})
}
