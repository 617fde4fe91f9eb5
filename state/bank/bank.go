package bank

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"flashliquidity/storage"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrSupplyOverflow is returned when a credit would overflow uint64.
	ErrSupplyOverflow = errors.New("bank: balance overflow")
)

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
)

// KV is the subset of a storage transaction the bank needs.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
}

// Bank keeps token balances per (account, mint) inside the caller's
// transaction so that transfers commit or roll back with the surrounding
// operation.
type Bank struct {
	kv KV
}

// New wraps kv in a bank.
func New(kv KV) *Bank {
	return &Bank{kv: kv}
}

func balanceKey(account, mint solana.PublicKey) []byte {
	return ethcrypto.Keccak256(balancePrefix, account[:], mint[:])
}

func supplyKey(mint solana.PublicKey) []byte {
	return ethcrypto.Keccak256(supplyPrefix, mint[:])
}

func (b *Bank) read(key []byte) (*uint256.Int, error) {
	raw, err := b.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (b *Bank) write(key []byte, v *uint256.Int) error {
	buf := v.Bytes32()
	return b.kv.Put(key, buf[:])
}

// Balance returns the balance of account in mint.
func (b *Bank) Balance(account, mint solana.PublicKey) (uint64, error) {
	v, err := b.read(balanceKey(account, mint))
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// Supply returns the total minted amount of mint.
func (b *Bank) Supply(mint solana.PublicKey) (uint64, error) {
	v, err := b.read(supplyKey(mint))
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func (b *Bank) credit(key []byte, amount uint64) error {
	v, err := b.read(key)
	if err != nil {
		return err
	}
	v.Add(v, uint256.NewInt(amount))
	if !v.IsUint64() {
		return ErrSupplyOverflow
	}
	return b.write(key, v)
}

// Transfer moves amount of mint from one account to another.
func (b *Bank) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	srcKey := balanceKey(from, mint)
	src, err := b.read(srcKey)
	if err != nil {
		return err
	}
	debit := uint256.NewInt(amount)
	if src.Lt(debit) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %d", ErrInsufficientFunds, from, src.Dec(), mint, amount)
	}
	src.Sub(src, debit)
	if err := b.write(srcKey, src); err != nil {
		return err
	}
	return b.credit(balanceKey(to, mint), amount)
}

// Mint issues amount of mint to an account and raises the mint's supply.
func (b *Bank) Mint(mint, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := b.credit(supplyKey(mint), amount); err != nil {
		return err
	}
	return b.credit(balanceKey(to, mint), amount)
}
