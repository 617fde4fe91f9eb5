package flashloan

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

var (
	governanceKey = ethcrypto.Keccak256([]byte("flashloan/governance"))
	rewardPoolKey = ethcrypto.Keccak256([]byte("flashloan/reward-pool"))

	stakerPrefix = []byte("flashloan/staker/")
	loanPrefix   = []byte("flashloan/loan/")
	vaultPrefix  = []byte("flashloan/vault/")

	vaultSeed = []byte("vault")
	claimSeed = []byte("claim")
)

// GovernanceKey returns the storage key of the governance singleton.
func GovernanceKey() []byte { return append([]byte(nil), governanceKey...) }

// RewardPoolKey returns the storage key of the reward pool singleton.
func RewardPoolKey() []byte { return append([]byte(nil), rewardPoolKey...) }

// StakerKey derives the key of the (owner, kind) staker record.
func StakerKey(owner, kind solana.PublicKey) []byte {
	return ethcrypto.Keccak256(stakerPrefix, owner[:], kind[:])
}

// LoanKey derives the key of a loan drawn against kind.
func LoanKey(kind solana.PublicKey, id LoanID) []byte {
	return ethcrypto.Keccak256(loanPrefix, kind[:], id[:])
}

// VaultKey derives the key of the vault descriptor for kind.
func VaultKey(kind solana.PublicKey) []byte {
	return ethcrypto.Keccak256(vaultPrefix, kind[:])
}

// VaultAddress derives the custody account that holds pooled collateral of
// kind, together with its bump.
func VaultAddress(programID, kind solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{vaultSeed, kind[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive vault address: %w", err)
	}
	return addr, bump, nil
}

// ClaimMintAddress derives the mint of the claim token issued against kind.
func ClaimMintAddress(programID, kind solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{claimSeed, kind[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive claim mint: %w", err)
	}
	return addr, nil
}
