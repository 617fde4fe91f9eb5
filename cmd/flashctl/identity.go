package main

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"

	"flashliquidity/services/flashloand/server"
)

const secretEnv = "FLASHLOAND_HMAC_SECRET"

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "base58 identity the token is issued to")
	scopes := fs.StringSlice("scope", nil, "scopes to grant (repeatable, e.g. admin)")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(secretEnv))
	if secret == "" {
		fmt.Fprintf(stderr, "Error: %s is not set\n", secretEnv)
		return 1
	}
	identity, err := solana.PublicKeyFromBase58(strings.TrimSpace(*subject))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid subject: %v\n", err)
		return 1
	}
	token, err := server.IssueToken([]byte(secret), identity, *scopes, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	wallet := solana.NewWallet()
	fmt.Fprintf(stdout, "Public key:  %s\n", wallet.PublicKey())
	fmt.Fprintf(stdout, "Private key: %s\n", wallet.PrivateKey)
	return 0
}

func runSign(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	keyEnv := fs.String("key-env", "FLASHCTL_PRIVATE_KEY", "environment variable holding the base58 private key")
	file := fs.StringP("file", "f", "-", "request body to sign, - for stdin")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(os.Getenv(*keyEnv)))
	if err != nil {
		fmt.Fprintf(stderr, "Error: read private key from %s: %v\n", *keyEnv, err)
		return 1
	}
	var body []byte
	if *file == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(*file)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: read body: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, server.SignRequest(ed25519.PrivateKey(key), body))
	return 0
}
