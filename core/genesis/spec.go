package genesis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"

	"flashliquidity/core/clock"
	"flashliquidity/native/flashloan"
)

// Spec is the TOML genesis document of a deployment.
type Spec struct {
	GenesisTime    string               `toml:"genesis_time"`
	SlotDurationMs uint64               `toml:"slot_duration_ms"`
	ProgramID      string               `toml:"program_id"`
	Admin          string               `toml:"admin"`
	BoostThreshold uint64               `toml:"boost_threshold"`
	Parameters     flashloan.Parameters `toml:"parameters"`
	Collaterals    []string             `toml:"collaterals"`
	Alloc          []AllocSpec          `toml:"alloc"`

	genesisTimestamp time.Time
	programID        solana.PublicKey
	admin            solana.PublicKey
	collaterals      []solana.PublicKey
	allocations      []allocation
}

// AllocSpec credits an initial token balance.
type AllocSpec struct {
	Account string `toml:"account"`
	Mint    string `toml:"mint"`
	Amount  uint64 `toml:"amount"`
}

type allocation struct {
	account solana.PublicKey
	mint    solana.PublicKey
	amount  uint64
}

// Load reads and validates a genesis file.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("genesis spec path must be provided")
	}
	var spec Spec
	meta, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, fmt.Errorf("decode genesis %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %q: unknown field %s", path, undecoded[0].String())
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("genesis %q: %w", path, err)
	}
	return &spec, nil
}

// Parse decodes and validates a genesis document held in memory.
func Parse(doc string) (*Spec, error) {
	var spec Spec
	if _, err := toml.Decode(doc, &spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func parseKey(field, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(value))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid public key %q: %w", field, value, err)
	}
	return key, nil
}

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts
	if s.programID, err = parseKey("program_id", s.ProgramID); err != nil {
		return err
	}
	if s.admin, err = parseKey("admin", s.Admin); err != nil {
		return err
	}
	if len(s.Collaterals) == 0 {
		return errors.New("collaterals: at least one collateral kind required")
	}
	if len(s.Collaterals) > flashloan.MaxSupportedCollaterals {
		return fmt.Errorf("collaterals: at most %d kinds supported", flashloan.MaxSupportedCollaterals)
	}
	seen := make(map[solana.PublicKey]struct{}, len(s.Collaterals))
	s.collaterals = s.collaterals[:0]
	for i, raw := range s.Collaterals {
		kind, err := parseKey(fmt.Sprintf("collaterals[%d]", i), raw)
		if err != nil {
			return err
		}
		if _, dup := seen[kind]; dup {
			return fmt.Errorf("collaterals[%d]: duplicate kind %s", i, kind)
		}
		seen[kind] = struct{}{}
		s.collaterals = append(s.collaterals, kind)
	}
	s.allocations = s.allocations[:0]
	for i, a := range s.Alloc {
		account, err := parseKey(fmt.Sprintf("alloc[%d].account", i), a.Account)
		if err != nil {
			return err
		}
		mint, err := parseKey(fmt.Sprintf("alloc[%d].mint", i), a.Mint)
		if err != nil {
			return err
		}
		if a.Amount == 0 {
			return fmt.Errorf("alloc[%d]: amount must be positive", i)
		}
		s.allocations = append(s.allocations, allocation{account: account, mint: mint, amount: a.Amount})
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("genesis_time must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesis_time: %w", err)
	}
	return ts.UTC(), nil
}

// GenesisTimestamp returns the time of slot zero.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// SlotDuration returns the configured slot length, defaulting to
// clock.DefaultSlotDuration.
func (s *Spec) SlotDuration() time.Duration {
	if s.SlotDurationMs == 0 {
		return clock.DefaultSlotDuration
	}
	return time.Duration(s.SlotDurationMs) * time.Millisecond
}

// EngineConfig returns the engine configuration described by the genesis.
func (s *Spec) EngineConfig() flashloan.Config {
	return flashloan.Config{ProgramID: s.programID, BoostThreshold: s.BoostThreshold}
}

// Genesis returns the protocol bootstrap payload.
func (s *Spec) Genesis() flashloan.Genesis {
	return flashloan.Genesis{
		Admin:       s.admin,
		Parameters:  s.Parameters,
		Collaterals: append([]solana.PublicKey(nil), s.collaterals...),
	}
}
