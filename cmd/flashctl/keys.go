package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"flashliquidity/native/flashloan"
)

func runKeys(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	program := fs.String("program", "", "base58 program id")
	kind := fs.String("kind", "", "base58 collateral kind")
	owner := fs.String("owner", "", "optional staker identity")
	loan := fs.String("loan", "", "optional loan id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	programID, err := solana.PublicKeyFromBase58(strings.TrimSpace(*program))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid program id: %v\n", err)
		return 1
	}
	kindKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(*kind))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid kind: %v\n", err)
		return 1
	}
	vault, bump, err := flashloan.VaultAddress(programID, kindKey)
	if err != nil {
		fmt.Fprintf(stderr, "Error: derive vault: %v\n", err)
		return 1
	}
	claim, err := flashloan.ClaimMintAddress(programID, kindKey)
	if err != nil {
		fmt.Fprintf(stderr, "Error: derive claim mint: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Vault authority: %s (bump %d)\n", vault, bump)
	fmt.Fprintf(stdout, "Claim mint:      %s\n", claim)
	fmt.Fprintf(stdout, "Governance key:  %s\n", hex.EncodeToString(flashloan.GovernanceKey()))
	fmt.Fprintf(stdout, "Pool key:        %s\n", hex.EncodeToString(flashloan.RewardPoolKey()))
	fmt.Fprintf(stdout, "Vault key:       %s\n", hex.EncodeToString(flashloan.VaultKey(kindKey)))
	if *owner != "" {
		ownerKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(*owner))
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid owner: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Staker key:      %s\n", hex.EncodeToString(flashloan.StakerKey(ownerKey, kindKey)))
	}
	if *loan != "" {
		id, err := uuid.Parse(strings.TrimSpace(*loan))
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid loan id: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Loan key:        %s\n", hex.EncodeToString(flashloan.LoanKey(kindKey, id)))
	}
	return 0
}
