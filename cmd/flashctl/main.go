package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "sign":
		return runSign(args[1:], stdout, stderr)
	case "keys":
		return runKeys(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "genesis":
		return runGenesis(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n%s\n", args[0], usage())
		return 1
	}
}

func usage() string {
	return `Usage: flashctl <command> [flags]

Commands:
  token     mint a bearer token for flashloand
  keygen    generate an ed25519 identity
  sign      sign a request body for X-Flashloan-Request-Signature
  keys      print derived vault, claim mint and record keys
  inspect   read protocol records from a stopped node's data directory
  genesis   validate a genesis file and print its summary`
}
