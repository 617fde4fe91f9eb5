package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"flashliquidity/core/events"
	"flashliquidity/core/genesis"
	"flashliquidity/native/flashloan"
	"flashliquidity/state/ledger"
	"flashliquidity/storage"
)

// runInspect opens the LevelDB state directory directly, so the node must be
// stopped.
func runInspect(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("state", "data/flashloand/state", "LevelDB state directory")
	owner := fs.String("owner", "", "print the staker record of this identity")
	kind := fs.String("kind", "", "collateral kind for --owner or --loan")
	loan := fs.String("loan", "", "print this loan record")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	db, err := storage.NewLevelDB(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open state: %v\n", err)
		return 1
	}
	defer db.Close()
	ldg, err := ledger.New(db, events.NoopEmitter{})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	engine := flashloan.NewEngine(flashloan.Config{})

	report := map[string]interface{}{}
	err = ldg.View(func(tx *ledger.Tx) error {
		gov, err := engine.Governance(tx)
		if err != nil {
			return err
		}
		pool, err := engine.RewardPool(tx)
		if err != nil {
			return err
		}
		report["governance"] = gov
		report["pool"] = pool
		if *owner == "" && *loan == "" {
			return nil
		}
		kindKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(*kind))
		if err != nil {
			return fmt.Errorf("invalid kind: %w", err)
		}
		if *owner != "" {
			ownerKey, err := solana.PublicKeyFromBase58(strings.TrimSpace(*owner))
			if err != nil {
				return fmt.Errorf("invalid owner: %w", err)
			}
			staker, err := engine.Staker(tx, ownerKey, kindKey)
			if err != nil {
				return err
			}
			report["staker"] = staker
		}
		if *loan != "" {
			id, err := uuid.Parse(strings.TrimSpace(*loan))
			if err != nil {
				return fmt.Errorf("invalid loan id: %w", err)
			}
			record, err := engine.Loan(tx, kindKey, id)
			if err != nil {
				return err
			}
			report["loan"] = record
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, report)
}

func runGenesis(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("genesis", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.StringP("file", "f", "genesis.toml", "genesis file to validate")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	spec, err := genesis.Load(*file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	g := spec.Genesis()
	return printJSON(stdout, stderr, map[string]interface{}{
		"genesisTime":    spec.GenesisTimestamp(),
		"slotDuration":   spec.SlotDuration().String(),
		"programId":      spec.EngineConfig().ProgramID,
		"boostThreshold": spec.EngineConfig().BoostThreshold,
		"admin":          g.Admin,
		"parameters":     g.Parameters,
		"collaterals":    g.Collaterals,
	})
}

func printJSON(stdout, stderr io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
