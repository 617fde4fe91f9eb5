package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"flashliquidity/core/events"
	"flashliquidity/state/bank"
	"flashliquidity/storage"
)

var errNilDatabase = errors.New("ledger: database not configured")

// Ledger runs operations against a storage backend one at a time. Each
// Update executes on a single transaction: the callback's writes, custody
// movements and events are all committed together or all discarded.
type Ledger struct {
	mu   sync.Mutex
	db   storage.Database
	sink events.Emitter
}

// New constructs a ledger over db. Committed events are forwarded to sink.
func New(db storage.Database, sink events.Emitter) (*Ledger, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if sink == nil {
		sink = events.NoopEmitter{}
	}
	return &Ledger{db: db, sink: sink}, nil
}

// Tx is the view of the ledger handed to one operation. It satisfies the
// engine's Host contract.
type Tx struct {
	txn  storage.Txn
	bank *bank.Bank
	buf  events.Buffer
}

func newTx(txn storage.Txn) *Tx {
	return &Tx{txn: txn, bank: bank.New(txn)}
}

func (tx *Tx) Get(key []byte) ([]byte, error) { return tx.txn.Get(key) }

func (tx *Tx) Has(key []byte) (bool, error) { return tx.txn.Has(key) }

func (tx *Tx) Put(key, value []byte) error { return tx.txn.Put(key, value) }

func (tx *Tx) Delete(key []byte) error { return tx.txn.Delete(key) }

// Transfer moves a balance between accounts.
func (tx *Tx) Transfer(from, to, mint solana.PublicKey, amount uint64) error {
	return tx.bank.Transfer(from, to, mint, amount)
}

// Mint issues new units of mint to an account.
func (tx *Tx) Mint(mint, to solana.PublicKey, amount uint64) error {
	return tx.bank.Mint(mint, to, amount)
}

// Balance reports the balance of account in mint as seen by this transaction.
func (tx *Tx) Balance(account, mint solana.PublicKey) (uint64, error) {
	return tx.bank.Balance(account, mint)
}

// Supply reports the minted supply of mint.
func (tx *Tx) Supply(mint solana.PublicKey) (uint64, error) {
	return tx.bank.Supply(mint)
}

// Emit buffers an event until the transaction commits.
func (tx *Tx) Emit(ev events.Event) { tx.buf.Emit(ev) }

// Update runs fn inside a write transaction. Calls are serialised. If fn
// returns an error, panics, or ctx is cancelled before commit, every effect
// is discarded.
func (l *Ledger) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if l == nil || l.db == nil {
		return errNilDatabase
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	txn, err := l.db.OpenTxn()
	if err != nil {
		return fmt.Errorf("ledger: open transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			txn.Discard()
		}
	}()

	tx := newTx(txn)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	committed = true
	tx.buf.Flush(l.sink)
	return nil
}

// View runs fn against a snapshot of committed state. It does not wait for
// an Update in progress and never sees its uncommitted writes. Writes return
// storage.ErrReadOnly and emitted events are dropped.
func (l *Ledger) View(fn func(tx *Tx) error) error {
	if l == nil || l.db == nil {
		return errNilDatabase
	}
	snap, err := l.db.Snapshot()
	if err != nil {
		return fmt.Errorf("ledger: snapshot: %w", err)
	}
	defer snap.Release()
	return fn(newTx(storage.ReadOnly(snap)))
}
