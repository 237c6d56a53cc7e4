// Command minttoken issues an HTTP API access token for an account id.
// The token carries admin rights when the id is listed in ADMIN_IDS.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/rewardledger/internal/service/auth/tokenmanager"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "minttoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	fs := pflag.NewFlagSet("minttoken", pflag.ContinueOnError)
	secret := fs.StringP("secret-key", "s", os.Getenv("SECRET_KEY"), "Secret key the server signs tokens with")
	ttl := fs.Duration("ttl", 0, "Token lifetime (server default when zero)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: minttoken [flags] <account-id>")
	}

	m, err := tokenmanager.New(tokenmanager.Config{SecretKey: *secret, AccessTTL: *ttl})
	if err != nil {
		return err
	}

	token, err := m.Issue(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Println(token.Value)
	fmt.Fprintf(os.Stderr, "expires at %s\n", token.ExpiresAt.Format(time.RFC3339))
	return nil
}
