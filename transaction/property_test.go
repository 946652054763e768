package transaction

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nbtaylor/lockvault/config"
)

// TestRandomScheduleNeverDeadlocksForever runs a pile of transactions
// against a small shared keyspace with randomized access patterns (no
// math/rand seed needed: goroutine interleaving alone supplies enough
// nondeterminism across runs). Every transaction must terminate — either
// by commit or by observing ErrAborted — within the test timeout, which
// is the property a correct deadlock detector must guarantee: no
// transaction can wait forever on a cycle.
func TestRandomScheduleNeverDeadlocksForever(t *testing.T) {
	cfg := config.EngineConfig{
		MaxTransactions:  16,
		MaxKeys:          8,
		MaxWritesPerTxn:  8,
		KeyLengthMax:     64,
		WaitPollInterval: 5 * time.Millisecond,
	}
	e := New(cfg, nil, nil)

	keys := []string{"k0", "k1", "k2", "k3", "k4"}
	const workers = 12

	var wg sync.WaitGroup
	done := make(chan struct{})

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			txn, err := e.Begin()
			if err != nil {
				return
			}

			// Each worker touches every key in an order derived from its
			// own index, so different workers contend in different
			// orders and some cycles are guaranteed to form.
			aborted := false
			for i := 0; i < len(keys); i++ {
				key := keys[(i+w)%len(keys)]
				if err := txn.Put(key, []byte(fmt.Sprintf("w%d", w))); err != nil {
					if errors.Is(err, ErrAborted) {
						aborted = true
					}
					break
				}
			}

			if aborted {
				_ = txn.Abort()
				return
			}
			_ = txn.Commit()
		}(w)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("workers did not all terminate: a transaction is stuck, deadlock detection failed to break a cycle")
	}

	stats := e.Stats()
	if stats.ActiveTransactions != 0 {
		t.Fatalf("expected no active transactions left behind, got %d", stats.ActiveTransactions)
	}
}
