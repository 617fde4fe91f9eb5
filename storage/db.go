package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// ErrReadOnly is returned when a write is attempted through a read-only view.
var ErrReadOnly = errors.New("storage: read-only transaction")

// Reader is the read half of a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Txn is an atomic unit of work. Writes are visible to subsequent reads on
// the same transaction and reach the underlying store only on Commit.
type Txn interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Snapshot is a consistent read view. Release must be called when done.
type Snapshot interface {
	Reader
	Release()
}

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	Reader
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// OpenTxn starts a transaction. Callers serialize transactions; backends
	// are not required to support more than one open transaction at a time.
	OpenTxn() (Txn, error)
	// Snapshot returns a point-in-time view of committed state. It does not
	// observe an open transaction and never blocks on one.
	Snapshot() (Snapshot, error)
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// Len reports the number of stored keys.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// OpenTxn returns an overlay transaction applied under a single lock on commit.
func (db *MemDB) OpenTxn() (Txn, error) {
	return &memTxn{
		db:     db,
		writes: make(map[string][]byte),
		dels:   make(map[string]struct{}),
	}, nil
}

// Snapshot copies the committed map under the read lock.
func (db *MemDB) Snapshot() (Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	data := make(map[string][]byte, len(db.data))
	for k, v := range db.data {
		data[k] = v
	}
	return memSnapshot(data), nil
}

type memSnapshot map[string][]byte

func (s memSnapshot) Get(key []byte) ([]byte, error) {
	value, ok := s[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s memSnapshot) Has(key []byte) (bool, error) {
	_, ok := s[string(key)]
	return ok, nil
}

func (memSnapshot) Release() {}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type memTxn struct {
	db     *MemDB
	writes map[string][]byte
	dels   map[string]struct{}
	done   bool
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, deleted := t.dels[k]; deleted {
		return nil, ErrNotFound
	}
	if value, ok := t.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return t.db.Get(key)
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *memTxn) Put(key, value []byte) error {
	if t.done {
		return errors.New("storage: transaction closed")
	}
	k := string(key)
	delete(t.dels, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if t.done {
		return errors.New("storage: transaction closed")
	}
	k := string(key)
	delete(t.writes, k)
	t.dels[k] = struct{}{}
	return nil
}

func (t *memTxn) Commit() error {
	if t.done {
		return errors.New("storage: transaction closed")
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for k := range t.dels {
		delete(t.db.data, k)
	}
	for k, v := range t.writes {
		t.db.data[k] = v
	}
	return nil
}

func (t *memTxn) Discard() {
	t.done = true
	t.writes = nil
	t.dels = nil
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// OpenTxn opens a LevelDB transaction. LevelDB blocks other writers until the
// transaction is committed or discarded.
func (ldb *LevelDB) OpenTxn() (Txn, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &levelTxn{tr: tr}, nil
}

// Snapshot pins the current LevelDB sequence number.
func (ldb *LevelDB) Snapshot() (Snapshot, error) {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return levelSnapshot{snap: snap}, nil
}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s levelSnapshot) Get(key []byte) ([]byte, error) {
	value, err := s.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s levelSnapshot) Has(key []byte) (bool, error) { return s.snap.Has(key, nil) }

func (s levelSnapshot) Release() { s.snap.Release() }

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t *levelTxn) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (t *levelTxn) Has(key []byte) (bool, error) { return t.tr.Has(key, nil) }

func (t *levelTxn) Put(key, value []byte) error { return t.tr.Put(key, value, nil) }

func (t *levelTxn) Delete(key []byte) error { return t.tr.Delete(key, nil) }

func (t *levelTxn) Commit() error { return t.tr.Commit() }

func (t *levelTxn) Discard() { t.tr.Discard() }

// --- Read-only view ---

// ReadOnly wraps a reader as a transaction that rejects writes. Commit is a
// no-op so read paths can share the transactional plumbing.
func ReadOnly(r Reader) Txn { return readOnlyTxn{r: r} }

type readOnlyTxn struct {
	r Reader
}

func (t readOnlyTxn) Get(key []byte) ([]byte, error) { return t.r.Get(key) }
func (t readOnlyTxn) Has(key []byte) (bool, error)   { return t.r.Has(key) }
func (readOnlyTxn) Put([]byte, []byte) error         { return ErrReadOnly }
func (readOnlyTxn) Delete([]byte) error              { return ErrReadOnly }
func (readOnlyTxn) Commit() error                    { return nil }
func (readOnlyTxn) Discard()                         {}
