package flashloan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flashliquidity/core/events"
	nativecommon "flashliquidity/native/common"
	"flashliquidity/native/oracle"
	"flashliquidity/storage"
)

const moduleName = "flashloan"

// State is the keyed record store an operation reads and writes. Get must
// return storage.ErrNotFound for absent keys.
type State interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Custody moves fungible balances between accounts and mints claim tokens.
type Custody interface {
	Transfer(from, to, mint solana.PublicKey, amount uint64) error
	Mint(mint, to solana.PublicKey, amount uint64) error
}

// Host bundles everything one operation needs from its execution
// environment. Hosts are expected to commit or discard all effects of an
// operation together.
type Host interface {
	State
	Custody
	events.Emitter
}

// Clock supplies the logical slot and the wall-clock unix timestamp.
type Clock interface {
	Slot() uint64
	UnixTimestamp() int64
}

// Callback is invoked after borrowed liquidity reaches the borrower.
type Callback interface {
	OnBorrow(ctx context.Context, borrower, destination solana.PublicKey) error
}

// CallbackFunc adapts a function into a Callback.
type CallbackFunc func(ctx context.Context, borrower, destination solana.PublicKey) error

// OnBorrow implements Callback.
func (f CallbackFunc) OnBorrow(ctx context.Context, borrower, destination solana.PublicKey) error {
	return f(ctx, borrower, destination)
}

// NoopCallback accepts every borrow.
type NoopCallback struct{}

// OnBorrow implements Callback.
func (NoopCallback) OnBorrow(context.Context, solana.PublicKey, solana.PublicKey) error { return nil }

// Config fixes the identity and thresholds of one engine instance.
type Config struct {
	ProgramID      solana.PublicKey
	BoostThreshold uint64
}

type borrowKey struct {
	borrower solana.PublicKey
	kind     solana.PublicKey
}

// Engine executes the staking and loan state transitions. It keeps no ledger
// state of its own; every operation works against the Host it is handed.
type Engine struct {
	cfg      Config
	clock    Clock
	oracle   oracle.PriceOracle
	callback Callback
	pauses   nativecommon.PauseView
	newID    func() LoanID
	tracer   trace.Tracer

	mu       sync.Mutex
	inFlight map[borrowKey]struct{}
}

// NewEngine constructs an engine. A zero BoostThreshold selects
// DefaultBoostThreshold.
func NewEngine(cfg Config) *Engine {
	if cfg.BoostThreshold == 0 {
		cfg.BoostThreshold = DefaultBoostThreshold
	}
	return &Engine{
		cfg:      cfg,
		callback: NoopCallback{},
		newID:    uuid.New,
		tracer:   otel.Tracer("flashliquidity/native/flashloan"),
		inFlight: make(map[borrowKey]struct{}),
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.cfg
}

// SetClock wires the slot and wall-clock source.
func (e *Engine) SetClock(c Clock) {
	if e == nil {
		return
	}
	e.clock = c
}

// SetOracle wires the price oracle consulted on borrow.
func (e *Engine) SetOracle(o oracle.PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = o
}

// SetCallback wires the post-borrow hook. Nil restores the no-op hook.
func (e *Engine) SetCallback(cb Callback) {
	if e == nil {
		return
	}
	if cb == nil {
		cb = NoopCallback{}
	}
	e.callback = cb
}

// SetPauses wires the pause view checked before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetIDGenerator overrides the loan identifier source.
func (e *Engine) SetIDGenerator(fn func() LoanID) {
	if e == nil || fn == nil {
		return
	}
	e.newID = fn
}

// BorrowInFlight reports whether a borrow for (borrower, kind) is currently
// executing. Callers that serialise operations behind a lock use it to reject
// nested borrows before blocking on that lock.
func (e *Engine) BorrowInFlight(borrower, kind solana.PublicKey) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[borrowKey{borrower: borrower, kind: kind}]
	return ok
}

// BorrowerBusy reports whether any borrow by borrower is executing,
// whatever the collateral kind.
func (e *Engine) BorrowerBusy(borrower solana.PublicKey) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.inFlight {
		if key.borrower == borrower {
			return true
		}
	}
	return false
}

func (e *Engine) enterBorrow(borrower, kind solana.PublicKey) (func(), error) {
	key := borrowKey{borrower: borrower, kind: kind}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[key]; busy {
		return nil, ErrReentrancy
	}
	e.inFlight[key] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.inFlight, key)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) begin(ctx context.Context, op string, h Host) (context.Context, trace.Span, error) {
	if e == nil {
		return ctx, nil, errNilEngine
	}
	ctx, span := e.tracer.Start(ctx, moduleName+"."+op)
	if h == nil {
		return ctx, span, errNilHost
	}
	if e.clock == nil {
		return ctx, span, errNilClock
	}
	if err := ctx.Err(); err != nil {
		return ctx, span, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return ctx, span, err
	}
	return ctx, span, nil
}

func finish(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
	}
	span.End()
}

func spanAttrs(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

func custodyErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCustody, err)
}

// --- record access ---

func loadGovernance(st State) (*Governance, error) {
	raw, err := st.Get(governanceKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialised
	}
	if err != nil {
		return nil, err
	}
	return DecodeGovernance(raw)
}

func storeGovernance(st State, g *Governance) error {
	raw, err := EncodeGovernance(g)
	if err != nil {
		return err
	}
	return st.Put(governanceKey, raw)
}

func loadRewardPool(st State) (*RewardPool, error) {
	raw, err := st.Get(rewardPoolKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialised
	}
	if err != nil {
		return nil, err
	}
	return DecodeRewardPool(raw)
}

func storeRewardPool(st State, p *RewardPool) error {
	return st.Put(rewardPoolKey, EncodeRewardPool(p))
}

// loadStaker returns the staker record and whether it existed.
func loadStaker(st State, owner, kind solana.PublicKey) (*Staker, bool, error) {
	raw, err := st.Get(StakerKey(owner, kind))
	if errors.Is(err, storage.ErrNotFound) {
		return &Staker{CollateralKind: kind}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s, err := DecodeStaker(raw)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func requireStaker(st State, owner, kind solana.PublicKey) (*Staker, error) {
	s, ok, err := loadStaker(st, owner, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStakerNotFound
	}
	return s, nil
}

func storeStaker(st State, owner solana.PublicKey, s *Staker) error {
	return st.Put(StakerKey(owner, s.CollateralKind), EncodeStaker(s))
}

// loadLoan returns the loan at id, or a zero record when the key is free.
func loadLoan(st State, kind solana.PublicKey, id LoanID) (*Loan, bool, error) {
	raw, err := st.Get(LoanKey(kind, id))
	if errors.Is(err, storage.ErrNotFound) {
		return &Loan{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	l, err := DecodeLoan(raw)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

func requireLoan(st State, kind solana.PublicKey, id LoanID) (*Loan, error) {
	l, ok, err := loadLoan(st, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return l, nil
}

func loadVault(st State, kind solana.PublicKey) (*Vault, error) {
	raw, err := st.Get(VaultKey(kind))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeVault(raw)
}

// vaultAccount resolves the custody account for kind, checking the stored
// bump against the derived one.
func (e *Engine) vaultAccount(st State, kind solana.PublicKey) (solana.PublicKey, error) {
	vault, err := loadVault(st, kind)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, bump, err := VaultAddress(e.cfg.ProgramID, kind)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if bump != vault.Bump {
		return solana.PublicKey{}, fmt.Errorf("%w: vault bump mismatch for %s", ErrInvalidRecord, kind)
	}
	return addr, nil
}

// --- queries ---

// Governance returns the current governance record.
func (e *Engine) Governance(st State) (*Governance, error) {
	if st == nil {
		return nil, errNilHost
	}
	return loadGovernance(st)
}

// RewardPool returns the current reward pool aggregate.
func (e *Engine) RewardPool(st State) (*RewardPool, error) {
	if st == nil {
		return nil, errNilHost
	}
	return loadRewardPool(st)
}

// Staker returns the (owner, kind) position.
func (e *Engine) Staker(st State, owner, kind solana.PublicKey) (*Staker, error) {
	if st == nil {
		return nil, errNilHost
	}
	return requireStaker(st, owner, kind)
}

// Loan returns a loan record. Repaid loans are reclaimed and report
// ErrLoanNotFound.
func (e *Engine) Loan(st State, kind solana.PublicKey, id LoanID) (*Loan, error) {
	if st == nil {
		return nil, errNilHost
	}
	return requireLoan(st, kind, id)
}
