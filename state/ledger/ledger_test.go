package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"flashliquidity/core/events"
	"flashliquidity/native/flashloan"
	"flashliquidity/native/oracle"
	"flashliquidity/storage"
)

type stepClock struct {
	slot uint64
	unix int64
}

func (c *stepClock) Slot() uint64         { return c.slot }
func (c *stepClock) UnixTimestamp() int64 { return c.unix }

func pk(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = b
	return k
}

type harness struct {
	ledger *Ledger
	engine *flashloan.Engine
	sink   *events.Buffer
	kind   solana.PublicKey
	vault  solana.PublicKey
}

func newHarness(t *testing.T, db storage.Database) *harness {
	t.Helper()
	sink := &events.Buffer{}
	l, err := New(db, sink)
	require.NoError(t, err)

	programID := pk(0xF0)
	engine := flashloan.NewEngine(flashloan.Config{ProgramID: programID, BoostThreshold: 10_000})
	clock := &stepClock{slot: 10, unix: 1_700_000_000}
	manual := oracle.NewManualOracle()
	manual.Set(100, 0, clock.unix)
	engine.SetClock(clock)
	engine.SetOracle(manual)

	kind := pk(0xC0)
	vault, _, err := flashloan.VaultAddress(programID, kind)
	require.NoError(t, err)

	genesis := flashloan.Genesis{
		Admin: pk(0xAD),
		Parameters: flashloan.Parameters{
			LiquidationPenaltyBps:   500,
			LiquidationGraceSlots:   10,
			CompoundRateNumerator:   1,
			CompoundRateDenominator: 1000,
			MaxBorrowRatioBps:       8000,
		},
		Collaterals: []solana.PublicKey{kind},
	}
	err = l.Update(context.Background(), func(tx *Tx) error {
		if err := engine.Bootstrap(context.Background(), tx, genesis); err != nil {
			return err
		}
		return tx.Mint(kind, pk(0x01), 20_000)
	})
	require.NoError(t, err)
	sink.Reset()
	return &harness{ledger: l, engine: engine, sink: sink, kind: kind, vault: vault}
}

func (h *harness) pool(t *testing.T) *flashloan.RewardPool {
	t.Helper()
	var pool *flashloan.RewardPool
	require.NoError(t, h.ledger.View(func(tx *Tx) error {
		var err error
		pool, err = h.engine.RewardPool(tx)
		return err
	}))
	return pool
}

func TestUpdateCommitsAndFlushesEvents(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	owner := pk(0x01)
	err := h.ledger.Update(context.Background(), func(tx *Tx) error {
		_, err := h.engine.Stake(context.Background(), tx, owner, h.kind, h.kind, 1_000, 0)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1_500), h.pool(t).TotalStaked)

	evs := h.sink.Events()
	require.Len(t, evs, 1)
	require.Equal(t, flashloan.TypeStaked, evs[0].EventType())

	require.NoError(t, h.ledger.View(func(tx *Tx) error {
		bal, err := tx.Balance(h.vault, h.kind)
		require.Equal(t, uint64(1_000), bal)
		return err
	}))
}

func TestFailedBorrowRollsBackEverything(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	ctx := context.Background()
	owner := pk(0x01)
	require.NoError(t, h.ledger.Update(ctx, func(tx *Tx) error {
		_, err := h.engine.Stake(ctx, tx, owner, h.kind, h.kind, 10_000, 0)
		return err
	}))
	before := h.pool(t)
	h.sink.Reset()

	h.engine.SetCallback(flashloan.CallbackFunc(func(context.Context, solana.PublicKey, solana.PublicKey) error {
		return errors.New("callback reverted")
	}))
	err := h.ledger.Update(ctx, func(tx *Tx) error {
		_, err := h.engine.Borrow(ctx, tx, owner, h.kind, owner, 1_000, 20)
		return err
	})
	require.ErrorIs(t, err, flashloan.ErrCallback)

	require.Equal(t, before, h.pool(t))
	require.Empty(t, h.sink.Events())
	require.NoError(t, h.ledger.View(func(tx *Tx) error {
		vault, err := tx.Balance(h.vault, h.kind)
		require.NoError(t, err)
		require.Equal(t, uint64(10_000), vault)
		bal, err := tx.Balance(owner, h.kind)
		require.Equal(t, uint64(10_000), bal)
		return err
	}))
}

func TestCancelledContextDiscards(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	ctx, cancel := context.WithCancel(context.Background())
	err := h.ledger.Update(ctx, func(tx *Tx) error {
		if _, err := h.engine.Stake(context.Background(), tx, pk(0x01), h.kind, h.kind, 1_000, 0); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, h.pool(t).TotalStaked)
	require.Empty(t, h.sink.Events())
}

func TestPanicDiscards(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	func() {
		defer func() { _ = recover() }()
		_ = h.ledger.Update(context.Background(), func(tx *Tx) error {
			if _, err := h.engine.Stake(context.Background(), tx, pk(0x01), h.kind, h.kind, 1_000, 0); err != nil {
				return err
			}
			panic("boom")
		})
	}()
	require.Zero(t, h.pool(t).TotalStaked)
	// The ledger lock must have been released.
	require.NoError(t, h.ledger.Update(context.Background(), func(*Tx) error { return nil }))
}

func TestViewIsReadOnly(t *testing.T) {
	h := newHarness(t, storage.NewMemDB())
	err := h.ledger.View(func(tx *Tx) error {
		return tx.Put([]byte("k"), []byte("v"))
	})
	require.ErrorIs(t, err, storage.ErrReadOnly)
}

func TestViewDoesNotWaitForUpdate(t *testing.T) {
	for name, open := range map[string]func(t *testing.T) storage.Database{
		"memdb": func(*testing.T) storage.Database { return storage.NewMemDB() },
		"leveldb": func(t *testing.T) storage.Database {
			db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
			require.NoError(t, err)
			t.Cleanup(db.Close)
			return db
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, open(t))
			require.NoError(t, h.ledger.Update(context.Background(), func(tx *Tx) error {
				if _, err := h.engine.Stake(context.Background(), tx, pk(0x01), h.kind, h.kind, 1_000, 0); err != nil {
					return err
				}
				// Runs while the writer holds the ledger; sees only committed state.
				require.Zero(t, h.pool(t).TotalStaked)
				return nil
			}))
			require.Equal(t, uint64(1_500), h.pool(t).TotalStaked)
		})
	}
}

func TestLevelDBBackedLedgerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	h := newHarness(t, db)
	require.NoError(t, h.ledger.Update(context.Background(), func(tx *Tx) error {
		_, err := h.engine.Stake(context.Background(), tx, pk(0x01), h.kind, h.kind, 1_000, 0)
		return err
	}))
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	l, err := New(reopened, nil)
	require.NoError(t, err)
	require.NoError(t, l.View(func(tx *Tx) error {
		pool, err := h.engine.RewardPool(tx)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(1_500), pool.TotalStaked)
		require.Equal(t, uint64(1), pool.UpdateCounter)
		return nil
	}))
}
