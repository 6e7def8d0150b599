package store

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"net/netip"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/watch"
	metrics "github.com/docker/go-metrics"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	indexID = "id"

	prefix = "_prefix"
)

var (
	// ErrExist is returned by create operations if the provided ID is already
	// taken.
	ErrExist = errors.New("object already exists")

	// ErrNotExist is returned by altering operations (update, delete) if the
	// provided ID is not found.
	ErrNotExist = errors.New("object does not exist")

	// ErrNameConflict is returned by create/update if the object name is
	// already in use by another object of the same scope.
	ErrNameConflict = errors.New("name conflicts with an existing object")

	// ErrOffsetConflict is returned when an address offset of a block is
	// already held by another address record.
	ErrOffsetConflict = errors.New("offset is already taken in the address block")

	// ErrLocationConflict is returned when a physical interface location
	// is already used by another interface of the foundation.
	ErrLocationConflict = errors.New("interface location conflicts with an existing interface")

	// ErrMACConflict is returned when a MAC is already used by another
	// interface.
	ErrMACConflict = errors.New("mac conflicts with an existing interface")

	// ErrIntervalConflict is returned when a block starts at the same
	// address as another block of the site.
	ErrIntervalConflict = errors.New("address block interval conflicts with an existing block")

	// ErrInvalidFindBy is returned if an unrecognized type is passed to Find.
	ErrInvalidFindBy = errors.New("invalid find argument type")

	// ErrSequenceConflict is returned when trying to update an object
	// whose sequence information does not match the object in the store's.
	ErrSequenceConflict = errors.New("update out of sequence")

	objectStorers []ObjectStoreConfig
	schema        = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{},
	}

	updateLatencyTimer metrics.Timer
	viewLatencyTimer   metrics.Timer
)

func init() {
	ns := metrics.NewNamespace("addrspace", "store", nil)
	updateLatencyTimer = ns.NewTimer("write_tx_latency", "Store write transaction latency.")
	viewLatencyTimer = ns.NewTimer("read_tx_latency", "Store read transaction latency.")
	metrics.Register(ns)
}

// IsConflict reports whether err was caused by a uniqueness or sequence
// constraint. Such errors go away if the caller re-reads and retries.
func IsConflict(err error) bool {
	switch errors.Cause(err) {
	case ErrExist, ErrNameConflict, ErrOffsetConflict, ErrLocationConflict, ErrMACConflict, ErrIntervalConflict, ErrSequenceConflict:
		return true
	}
	return false
}

// MemoryStore is a concurrency-safe, in-memory store of address space
// records. Writers are serialized; readers see a consistent snapshot.
type MemoryStore struct {
	// updateLock must be held during an update transaction.
	updateLock sync.Mutex

	memDB   *memdb.MemDB
	queue   *watch.Queue
	clock   clock.Clock
	version uint64
}

// NewMemoryStore returns an in-memory store. Timestamps are taken from clk;
// a nil clock means the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		// This shouldn't fail
		panic(err)
	}
	if clk == nil {
		clk = clock.NewClock()
	}

	return &MemoryStore{
		memDB: memDB,
		queue: watch.NewQueue(),
		clock: clk,
	}
}

// Close closes the memory store and frees its associated resources.
func (s *MemoryStore) Close() error {
	return s.queue.Close()
}

// WatchQueue returns the publish/subscribe queue. Every committed
// transaction publishes one api.Event per changed record followed by an
// api.EventCommit.
func (s *MemoryStore) WatchQueue() *watch.Queue {
	return s.queue
}

// Version returns the version of the last committed write transaction.
func (s *MemoryStore) Version() uint64 {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()
	return s.version
}

// ReadTx is a read transaction. Note that transaction does not imply
// any internal batching. It only means that the transaction presents a
// consistent view of the data that cannot be affected by other
// transactions.
type ReadTx interface {
	lookup(table, index string, args ...interface{}) Object
	get(table, id string) Object
	find(table string, by By, checkType func(By) error, appendResult func(Object)) error
	txn() *memdb.Txn
}

type readTx struct {
	memDBTx *memdb.Txn
}

// View executes a read transaction.
func (s *MemoryStore) View(cb func(ReadTx)) {
	defer metrics.StartTimer(viewLatencyTimer)()
	memDBTx := s.memDB.Txn(false)

	readTx := readTx{
		memDBTx: memDBTx,
	}
	cb(readTx)
	memDBTx.Commit()
}

// Tx is a read/write transaction. Note that transaction does not imply
// any internal batching. The purpose of this transaction is to give the
// user a guarantee that its changes won't be visible to other transactions
// until the transaction is over.
type Tx interface {
	ReadTx
	create(table string, o Object) error
	update(table string, o Object) error
	delete(table, id string) error
}

type tx struct {
	readTx
	curVersion uint64
	now        func() api.Meta
	changelist []api.Event
}

// Update executes a read/write transaction. If cb returns an error, none
// of its changes are applied.
func (s *MemoryStore) Update(cb func(Tx) error) error {
	defer metrics.StartTimer(updateLatencyTimer)()
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	memDBTx := s.memDB.Txn(true)

	now := s.clock.Now().UTC()
	tx := &tx{
		readTx:     readTx{memDBTx: memDBTx},
		curVersion: s.version + 1,
		now: func() api.Meta {
			return api.Meta{CreatedAt: now, UpdatedAt: now}
		},
	}

	if err := cb(tx); err != nil {
		memDBTx.Abort()
		return err
	}
	memDBTx.Commit()

	if len(tx.changelist) != 0 {
		s.version = tx.curVersion
		for _, c := range tx.changelist {
			s.queue.Publish(c)
		}
		s.queue.Publish(api.EventCommit{Version: s.version})
	}
	return nil
}

func (tx readTx) txn() *memdb.Txn {
	return tx.memDBTx
}

// lookup is an internal typed wrapper around memdb.
func (tx readTx) lookup(table, index string, args ...interface{}) Object {
	j, err := tx.memDBTx.First(table, index, args...)
	if err != nil {
		return nil
	}
	if j != nil {
		return j.(Object)
	}
	return nil
}

// create adds a new object to the store.
// Returns ErrExist if the ID is already taken.
func (tx *tx) create(table string, o Object) error {
	if o.ID() == "" {
		return errors.Errorf("%s: object has no id", table)
	}
	if tx.lookup(table, indexID, o.ID()) != nil {
		return ErrExist
	}

	copy := o.Copy()
	meta := tx.now()
	meta.Version = tx.curVersion
	copy.SetMeta(meta)
	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, api.Event{Action: api.ActionCreate, Table: table, ID: o.ID(), Object: copy.Record()})
		o.SetMeta(meta)
	}
	return err
}

// update updates an existing object in the store.
// Returns ErrNotExist if the object doesn't exist, and ErrSequenceConflict
// if the object was changed since the caller read it.
func (tx *tx) update(table string, o Object) error {
	oldN := tx.lookup(table, indexID, o.ID())
	if oldN == nil {
		return ErrNotExist
	}

	if oldN.Meta().Version != o.Meta().Version {
		return ErrSequenceConflict
	}

	copy := o.Copy()
	meta := tx.now()
	meta.CreatedAt = oldN.Meta().CreatedAt
	meta.Version = tx.curVersion
	copy.SetMeta(meta)

	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, api.Event{Action: api.ActionUpdate, Table: table, ID: o.ID(), Object: copy.Record()})
		o.SetMeta(meta)
	}
	return err
}

// delete removes an object from the store.
// Returns ErrNotExist if the object doesn't exist.
func (tx *tx) delete(table, id string) error {
	n := tx.lookup(table, indexID, id)
	if n == nil {
		return ErrNotExist
	}

	err := tx.memDBTx.Delete(table, n)
	if err == nil {
		tx.changelist = append(tx.changelist, api.Event{Action: api.ActionDelete, Table: table, ID: id, Object: n.Record()})
	}
	return err
}

// get looks up an object by ID.
// Returns nil if the object doesn't exist.
func (tx readTx) get(table, id string) Object {
	o := tx.lookup(table, indexID, id)
	if o == nil {
		return nil
	}
	return o.Copy()
}

// find selects a set of objects calls a callback for each matching object.
func (tx readTx) find(table string, by By, checkType func(By) error, appendResult func(Object)) error {
	fromResultIterator := func(it memdb.ResultIterator) {
		for {
			obj := it.Next()
			if obj == nil {
				break
			}
			appendResult(obj.(Object).Copy())
		}
	}

	if err := checkType(by); err != nil {
		return err
	}

	index, args, err := by.index()
	if err != nil {
		return err
	}
	it, err := tx.memDBTx.Get(table, index, args...)
	if err != nil {
		return err
	}
	fromResultIterator(it)
	return nil
}

// keyEnd sorts after every terminator byte. Appending it to a lookup key
// turns "key" into "key and every longer key with this prefix".
type keyEnd struct{}

// encodeKey builds an index key. Strings are null terminated, addresses
// are a family byte followed by 16 bytes, integers are 16 bytes big
// endian, so that byte order matches numeric order.
func encodeKey(args ...interface{}) ([]byte, error) {
	var out []byte
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			out = append(out, v...)
			out = append(out, 0)
		case netip.Addr:
			if !v.IsValid() {
				return nil, errors.New("invalid address in index key")
			}
			fam := byte(6)
			if v.Is4() {
				fam = 4
			}
			b := v.As16()
			out = append(out, fam)
			out = append(out, b[:]...)
		case *big.Int:
			if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
				return nil, fmt.Errorf("offset %v cannot be indexed", v)
			}
			var b [16]byte
			v.FillBytes(b[:])
			out = append(out, b[:]...)
		case api.AddressKind:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(v))
			out = append(out, b[:]...)
		case keyEnd:
			out = append(out, 0xff)
		default:
			return nil, fmt.Errorf("unsupported index argument %#v", arg)
		}
	}
	return out, nil
}

func fromArgs(args ...interface{}) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("must provide at least one argument")
	}
	return encodeKey(args...)
}

func prefixFromArgs(args ...interface{}) ([]byte, error) {
	val, err := fromArgs(args...)
	if err != nil {
		return nil, err
	}

	// Strip the null terminator, the rest is a prefix
	n := len(val)
	if n > 0 && val[n-1] == 0 {
		return val[:n-1], nil
	}
	return val, nil
}

// indexer adapts a key function to the memdb indexer interfaces. A key
// function returning nil args leaves the object out of the index.
type indexer struct {
	key func(Object) []interface{}
}

func (i indexer) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (i indexer) PrefixFromArgs(args ...interface{}) ([]byte, error) {
	return prefixFromArgs(args...)
}

func (i indexer) FromObject(obj interface{}) (bool, []byte, error) {
	o, ok := obj.(Object)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	args := i.key(o)
	if args == nil {
		return false, nil, nil
	}
	val, err := encodeKey(args...)
	if err != nil {
		return false, nil, err
	}
	return true, val, nil
}

// multiIndexer is an indexer whose key function yields one key per value
// the object is filed under.
type multiIndexer struct {
	keys func(Object) [][]interface{}
}

func (i multiIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (i multiIndexer) PrefixFromArgs(args ...interface{}) ([]byte, error) {
	return prefixFromArgs(args...)
}

func (i multiIndexer) FromObject(obj interface{}) (bool, [][]byte, error) {
	o, ok := obj.(Object)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	keys := i.keys(o)
	if len(keys) == 0 {
		return false, nil, nil
	}
	vals := make([][]byte, 0, len(keys))
	for _, args := range keys {
		val, err := encodeKey(args...)
		if err != nil {
			return false, nil, err
		}
		vals = append(vals, val)
	}
	return true, vals, nil
}

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:   indexID,
		Unique: true,
		Indexer: indexer{key: func(o Object) []interface{} {
			return []interface{}{o.ID()}
		}},
	}
}

func optionalIndex(name string, unique bool, key func(Object) []interface{}) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:         name,
		Unique:       unique,
		AllowMissing: true,
		Indexer:      indexer{key: key},
	}
}

func multiIndex(name string, keys func(Object) [][]interface{}) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:         name,
		AllowMissing: true,
		Indexer:      multiIndexer{keys: keys},
	}
}

// conflicts reports whether a record other than self holds the key.
func conflicts(tx ReadTx, table, index, self string, args ...interface{}) bool {
	existing := tx.lookup(table, index, args...)
	return existing != nil && existing.ID() != self
}

// Save serializes the data in the store.
func (s *MemoryStore) Save() (*api.StoreSnapshot, error) {
	var (
		snapshot api.StoreSnapshot
		err      error
	)
	s.updateLock.Lock()
	snapshot.Version = s.version
	s.View(func(tx ReadTx) {
		for _, os := range objectStorers {
			if err = os.Save(tx, &snapshot); err != nil {
				return
			}
		}
	})
	s.updateLock.Unlock()
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Restore replaces the contents of the store with the snapshot. Records
// keep the metadata they were saved with.
func (s *MemoryStore) Restore(snapshot *api.StoreSnapshot) error {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	memDBTx := s.memDB.Txn(true)
	tx := &restoreTx{tx: tx{readTx: readTx{memDBTx: memDBTx}}}
	for _, os := range objectStorers {
		if err := os.Restore(tx, snapshot); err != nil {
			memDBTx.Abort()
			return err
		}
	}
	memDBTx.Commit()
	s.version = snapshot.Version
	s.queue.Publish(api.EventCommit{Version: s.version})
	return nil
}

// restoreTx writes records with their saved metadata and without events.
type restoreTx struct {
	tx
}

func (tx *restoreTx) create(table string, o Object) error {
	if tx.lookup(table, indexID, o.ID()) != nil {
		return ErrExist
	}
	return tx.memDBTx.Insert(table, o.Copy())
}

func (tx *restoreTx) update(table string, o Object) error {
	return tx.memDBTx.Insert(table, o.Copy())
}

func (tx *restoreTx) delete(table, id string) error {
	n := tx.lookup(table, indexID, id)
	if n == nil {
		return ErrNotExist
	}
	return tx.memDBTx.Delete(table, n)
}

func restoreTable(tx Tx, table string, objs []Object) error {
	it, err := tx.txn().Get(table, indexID)
	if err != nil {
		return err
	}
	var existing []string
	for obj := it.Next(); obj != nil; obj = it.Next() {
		existing = append(existing, obj.(Object).ID())
	}
	for _, id := range existing {
		if err := tx.delete(table, id); err != nil {
			return err
		}
	}
	for _, o := range objs {
		if err := tx.create(table, o); err != nil {
			return errors.Wrapf(err, "restoring %s %s", table, o.ID())
		}
	}
	return nil
}
