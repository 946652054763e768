// Package transaction implements the pessimistic concurrency control core:
// per-key exclusive locking, online wait-for-graph deadlock detection with
// youngest-victim resolution, and buffered-write transactions committed
// atomically against an in-memory key-value map.
package transaction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbtaylor/lockvault/config"
)

// writeEntry is one buffered (key, value) pair in a transaction's write
// set. A repeated put on the same key overwrites that key's entry in
// place, so the most recent value wins both for read-your-own-writes and
// at commit.
type writeEntry struct {
	key   string
	value []byte
}

// Transaction is a live transaction entity, created by Engine.Begin and
// destroyed by Commit or Abort. It owns its write_set and held_locks list
// exclusively; the aborted flag may be set by any goroutine (the
// transaction's own thread, or a lock acquire elsewhere detecting this
// transaction as a deadlock victim).
type Transaction struct {
	slot      int
	startSeq  uint64
	aborted   atomic.Bool
	engine    *Engine
	maxWrites int

	mu         sync.Mutex
	heldLocks  map[int]struct{}
	writeSet   []writeEntry
	writeIndex map[string]int // key -> index into writeSet of most recent entry
}

// ID returns the transaction's slot id, stable for its lifetime.
func (t *Transaction) ID() int { return t.slot }

// StartSeq returns the monotonically increasing sequence number assigned
// at Begin; larger means younger, used solely for victim selection.
func (t *Transaction) StartSeq() uint64 { return t.startSeq }

// Aborted reports whether the transaction has been marked aborted, either
// by explicit Abort or by deadlock victim selection on another goroutine.
func (t *Transaction) Aborted() bool { return t.aborted.Load() }

func (t *Transaction) recordHeldLock(bucket int) {
	t.mu.Lock()
	t.heldLocks[bucket] = struct{}{}
	t.mu.Unlock()
}

// takeHeldLocks returns and clears the set of bucket indices this
// transaction currently holds locks on.
func (t *Transaction) takeHeldLocks() []int {
	t.mu.Lock()
	locks := make([]int, 0, len(t.heldLocks))
	for idx := range t.heldLocks {
		locks = append(locks, idx)
	}
	t.heldLocks = make(map[int]struct{})
	t.mu.Unlock()
	return locks
}

// bufferedValue returns the most recently buffered value for key, if any
// put has been issued for it within this transaction (read-your-own-
// writes).
func (t *Transaction) bufferedValue(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.writeIndex[key]
	if !ok {
		return nil, false
	}
	return t.writeSet[i].value, true
}

// appendWrite buffers (key, value), deduplicating so read-your-own-writes
// always returns the most recent value. Returns ErrWriteSetFull if the
// configured MaxWritesPerTxn would be exceeded by a genuinely new key.
func (t *Transaction) appendWrite(key string, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.writeIndex[key]; ok {
		t.writeSet[i].value = value
		return nil
	}

	if len(t.writeSet) >= t.maxWrites {
		return ErrWriteSetFull
	}

	t.writeIndex[key] = len(t.writeSet)
	t.writeSet = append(t.writeSet, writeEntry{key: key, value: value})
	return nil
}

// snapshotWrites returns a copy of the buffered writes in append order,
// for commit to apply against the KV map.
func (t *Transaction) snapshotWrites() []writeEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]writeEntry, len(t.writeSet))
	copy(out, t.writeSet)
	return out
}

// Get returns a copy of the current value for key, or (nil, false) if
// absent. Fails with ErrAborted if the transaction is already aborted or
// becomes aborted while blocked acquiring the key's lock.
func (t *Transaction) Get(key string) ([]byte, bool, error) {
	if t.aborted.Load() {
		return nil, false, ErrAborted
	}

	if v, ok := t.bufferedValue(key); ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		return cp, true, nil
	}

	if err := t.engine.locks.acquire(t, key); err != nil {
		return nil, false, err
	}

	v, ok := t.engine.kv.read(key)
	return v, ok, nil
}

// Put buffers (key, value) for application at commit. Fails with
// ErrAborted under the same conditions as Get, or ErrWriteSetFull if the
// transaction's write-set capacity is exhausted.
func (t *Transaction) Put(key string, value []byte) error {
	if t.aborted.Load() {
		return ErrAborted
	}
	if len(key) > t.engine.config.KeyLengthMax {
		return ErrKeyTooLong
	}

	if err := t.engine.locks.acquire(t, key); err != nil {
		return err
	}

	return t.appendWrite(key, value)
}

// Commit applies the buffered write set to the KV map atomically (every
// touched key remains exclusively locked throughout), releases all held
// locks, and frees the transaction's slot. If the transaction was already
// aborted, Commit releases locks and returns ErrAborted instead.
func (t *Transaction) Commit() error {
	if t.aborted.Load() {
		t.engine.finish(t)
		t.engine.noteAbort()
		return ErrAborted
	}

	for _, w := range t.snapshotWrites() {
		t.engine.kv.replace(w.key, w.value)
	}

	t.engine.graph.clearOutgoing(t.slot)
	t.engine.finish(t)
	t.engine.noteCommit()
	return nil
}

// Abort marks the transaction aborted, releases all held locks, and frees
// its slot. Safe to call on an already-aborted transaction.
func (t *Transaction) Abort() error {
	t.aborted.Store(true)
	t.engine.graph.clearOutgoing(t.slot)
	t.engine.finish(t)
	t.engine.noteAbort()
	return nil
}

// Engine is the single value owning the transaction slot table, lock
// table, wait-for graph, and KV map, threaded through every operation
// instead of relying on process-wide global state.
type Engine struct {
	config config.EngineConfig

	slotsMu      sync.RWMutex
	slots        []*Transaction
	nextStartSeq uint64

	graph *waitForGraph
	locks *lockTable
	kv    *kvMap

	logger diagnosticLogger

	statsMu   sync.Mutex
	commits   uint64
	aborts    uint64
	beginErrs uint64
}

// diagnosticLogger is satisfied by *logging.Logger; kept narrow so this
// package need not import logging directly.
type diagnosticLogger interface {
	Info(msg string, fields map[string]any)
}

// New builds an Engine from cfg. A nil logger and nil codec are valid:
// logging becomes a no-op and values are stored uncompressed.
func New(cfg config.EngineConfig, logger diagnosticLogger, codec valueCodec) *Engine {
	cfg = cfg.WithDefaults()

	e := &Engine{
		config: cfg,
		slots:  make([]*Transaction, cfg.MaxTransactions),
		logger: logger,
	}
	e.graph = newWaitForGraph(cfg.MaxTransactions)
	e.locks = newLockTable(e, cfg.MaxKeys, cfg.WaitPollInterval)
	e.kv = newKVMap(cfg.MaxKeys, codec)
	return e
}

// Begin allocates a free transaction slot and returns a handle to it, or
// ErrNoSlot if every slot is currently occupied.
func (e *Engine) Begin() (*Transaction, error) {
	e.slotsMu.Lock()
	defer e.slotsMu.Unlock()

	for i, t := range e.slots {
		if t != nil {
			continue
		}
		e.nextStartSeq++
		txn := &Transaction{
			slot:       i,
			startSeq:   e.nextStartSeq,
			engine:     e,
			maxWrites:  e.config.MaxWritesPerTxn,
			heldLocks:  make(map[int]struct{}),
			writeIndex: make(map[string]int),
		}
		e.slots[i] = txn
		return txn, nil
	}

	e.statsMu.Lock()
	e.beginErrs++
	e.statsMu.Unlock()
	return nil, ErrNoSlot
}

// finish releases every lock txn holds and frees its slot.
func (e *Engine) finish(txn *Transaction) {
	e.locks.releaseAll(txn)

	e.slotsMu.Lock()
	if e.slots[txn.slot] == txn {
		e.slots[txn.slot] = nil
	}
	e.slotsMu.Unlock()
}

// slotStartSeqLive reports whether slot currently holds a live
// transaction and, if so, its start sequence. Used only by victim
// selection (graph.go's youngestVictim).
func (e *Engine) slotStartSeqLive(slot int) (uint64, bool) {
	e.slotsMu.RLock()
	defer e.slotsMu.RUnlock()
	t := e.slots[slot]
	if t == nil {
		return 0, false
	}
	return t.startSeq, true
}

// markAborted sets the aborted flag on the transaction in slot, if still
// live. This is the only mechanism by which one transaction's progress
// (discovering a cycle) reaches across to abort another.
func (e *Engine) markAborted(slot int) {
	e.slotsMu.RLock()
	t := e.slots[slot]
	e.slotsMu.RUnlock()
	if t != nil {
		t.aborted.Store(true)
	}
}

func (e *Engine) logVictim(cycle []int, victim int) {
	if e.logger == nil {
		return
	}
	e.logger.Info("deadlock detected, aborting youngest transaction in cycle", map[string]any{
		"cycle":  cycle,
		"victim": victim,
	})
}

func (e *Engine) noteCommit() {
	e.statsMu.Lock()
	e.commits++
	e.statsMu.Unlock()
}

func (e *Engine) noteAbort() {
	e.statsMu.Lock()
	e.aborts++
	e.statsMu.Unlock()
}

// Stats is a point-in-time snapshot of engine activity: how many
// transactions are currently live and how many have committed, aborted,
// or failed to begin since the engine started.
type Stats struct {
	ActiveTransactions int
	Commits            uint64
	Aborts             uint64
	BeginFailures      uint64
}

// Stats returns a snapshot of current engine activity.
func (e *Engine) Stats() Stats {
	e.slotsMu.RLock()
	active := 0
	for _, t := range e.slots {
		if t != nil {
			active++
		}
	}
	e.slotsMu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return Stats{
		ActiveTransactions: active,
		Commits:            e.commits,
		Aborts:             e.aborts,
		BeginFailures:      e.beginErrs,
	}
}

// DeadlockReport is a read-only snapshot of one detected wait-for cycle,
// for diagnostics and tests. It never triggers resolution itself —
// resolution happens synchronously inside lock acquisition (lock.go).
type DeadlockReport struct {
	Cycle  []int
	Victim int
}

// DetectDeadlocks scans every currently-blocked transaction slot for a
// cycle in the wait-for graph and reports what would be (or already was)
// selected as the victim. Read-only: it never triggers resolution itself,
// so it never races with the synchronous resolution path inside acquire.
func (e *Engine) DetectDeadlocks() []DeadlockReport {
	e.graph.mtx.Lock()
	defer e.graph.mtx.Unlock()

	var reports []DeadlockReport
	seen := make(map[int]bool)
	for slot := 0; slot < e.config.MaxTransactions; slot++ {
		if seen[slot] {
			continue
		}
		cycle := e.graph.findCycleContaining(slot)
		if cycle == nil {
			continue
		}
		for _, s := range cycle {
			seen[s] = true
		}
		victim, ok := youngestVictim(cycle, e.slotStartSeqLive)
		if !ok {
			continue
		}
		reports = append(reports, DeadlockReport{Cycle: cycle, Victim: victim})
	}
	return reports
}

// waitPollInterval exposes the engine's configured poll interval, mostly
// useful for tests that need to wait out at least one poll cycle.
func (e *Engine) waitPollInterval() time.Duration {
	return e.config.WaitPollInterval
}
