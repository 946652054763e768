package transaction

import (
	"sync"
	"time"
)

const noHolder = -1

// lockBucket is one per key bucket (shared index space with kvMap, see
// hash.go): an exclusive, re-entrant lock guarded by its own mutex and
// condition variable. No shared/read mode and no FIFO wait queue — a
// single holder at a time, woken waiters re-check the holder themselves
// on a bounded timeout rather than being granted the lock in arrival order.
type lockBucket struct {
	mu     sync.Mutex
	cond   *sync.Cond
	holder int // noHolder, or a live transaction slot id
}

// lockTable owns one lockBucket per key bucket and resolves acquire/
// release against the engine's wait-for graph and transaction slots.
type lockTable struct {
	engine       *Engine
	buckets      []lockBucket
	pollInterval time.Duration
}

func newLockTable(engine *Engine, numBuckets int, pollInterval time.Duration) *lockTable {
	lt := &lockTable{
		engine:       engine,
		buckets:      make([]lockBucket, numBuckets),
		pollInterval: pollInterval,
	}
	for i := range lt.buckets {
		lt.buckets[i].holder = noHolder
		lt.buckets[i].cond = sync.NewCond(&lt.buckets[i].mu)
	}
	return lt
}

// acquire grants the lock immediately to a free bucket or its current
// holder (re-entrant), and otherwise blocks: every blocked iteration runs
// cycle detection under the graph mutex before waiting, and returns
// ErrAborted the moment the caller's own abort flag is observed true.
func (lt *lockTable) acquire(txn *Transaction, key string) error {
	idx := bucketIndex(key, len(lt.buckets))
	b := &lt.buckets[idx]

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if txn.aborted.Load() {
			lt.engine.graph.clearOutgoing(txn.slot)
			return ErrAborted
		}

		if b.holder == noHolder || b.holder == txn.slot {
			b.holder = txn.slot
			txn.recordHeldLock(idx)
			lt.engine.graph.clearOutgoing(txn.slot)
			return nil
		}

		// Blocked: record the wait and look for a cycle while holding
		// both this lock's mutex and the graph mutex. Always acquire in
		// that order — lock mutex before graph mutex — never the reverse,
		// or a concurrent acquire on another bucket could deadlock the
		// lock manager itself.
		lt.engine.graph.mtx.Lock()
		lt.engine.graph.addEdge(txn.slot, b.holder)
		if cycle := lt.engine.graph.findCycleContaining(txn.slot); cycle != nil {
			if victim, ok := youngestVictim(cycle, lt.engine.slotStartSeqLive); ok {
				lt.engine.markAborted(victim)
				lt.engine.logVictim(cycle, victim)
			}
		}
		lt.engine.graph.mtx.Unlock()

		if txn.aborted.Load() {
			lt.engine.graph.clearOutgoing(txn.slot)
			return ErrAborted
		}

		waitBounded(b.cond, &b.mu, lt.pollInterval)
	}
}

// releaseAll drops every lock the transaction holds: clears the holder if
// still this transaction, removes incoming wait-for edges that pointed at
// it, and wakes waiters.
func (lt *lockTable) releaseAll(txn *Transaction) {
	held := txn.takeHeldLocks()
	for _, idx := range held {
		b := &lt.buckets[idx]
		b.mu.Lock()
		if b.holder == txn.slot {
			b.holder = noHolder
		}
		b.cond.Broadcast()
		b.mu.Unlock()
	}
	lt.engine.graph.removeIncoming(txn.slot)
}

// waitBounded blocks on cond (whose mutex mu must already be held by the
// caller) until either Broadcast/Signal wakes it or timeout elapses.
// sync.Cond has no native timed wait, so a one-shot timer is used to
// force a wake-up; callers must tolerate such "timed" wakes the same as
// signalled or spurious ones and simply re-check their own condition.
func waitBounded(cond *sync.Cond, mu *sync.Mutex, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		mu.Lock()
		cond.Broadcast()
		mu.Unlock()
	})
	cond.Wait()
	timer.Stop()
}
