// Command lockvault-demo builds a lockvault engine from configuration and
// walks through a handful of usage scenarios: basic get/put/commit, a
// buffered abort, concurrent non-conflicting transactions, and a classic
// two-party deadlock resolved by aborting the youngest transaction.
package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nbtaylor/lockvault/compression"
	"github.com/nbtaylor/lockvault/config"
	"github.com/nbtaylor/lockvault/logging"
	"github.com/nbtaylor/lockvault/transaction"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("apply env overrides: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger = logger.WithComponent("lockvault-demo")

	codec, err := compression.New(cfg.Compression)
	if err != nil {
		log.Fatalf("init compression: %v", err)
	}

	// A nil *compression.Codec must be passed as a bare nil, not as a
	// typed-nil interface value, or the engine's "codec == nil means
	// store raw" check would see a non-nil interface and dereference it.
	var engine *transaction.Engine
	if codec == nil {
		engine = transaction.New(cfg.Engine, logger, nil)
	} else {
		engine = transaction.New(cfg.Engine, logger, codec)
	}

	fmt.Println("=== lockvault demo ===")

	fmt.Println("\n1. Basic get/put/commit:")
	basicOperations(engine)

	fmt.Println("\n2. Abort discards buffered writes:")
	abortDiscardsWrites(engine)

	fmt.Println("\n3. Concurrent transactions on disjoint keys:")
	concurrentDisjointKeys(engine)

	fmt.Println("\n4. Classic two-party deadlock:")
	classicDeadlock(engine)

	stats := engine.Stats()
	fmt.Printf("\nFinal stats: active=%d commits=%d aborts=%d begin_failures=%d\n",
		stats.ActiveTransactions, stats.Commits, stats.Aborts, stats.BeginFailures)
}

func basicOperations(engine *transaction.Engine) {
	txn, err := engine.Begin()
	if err != nil {
		log.Printf("begin: %v", err)
		return
	}

	if err := txn.Put("user:1", []byte(`{"name":"Alice","age":30}`)); err != nil {
		log.Printf("put: %v", err)
		_ = txn.Abort()
		return
	}
	fmt.Println("put user:1")

	value, ok, err := txn.Get("user:1")
	if err != nil {
		log.Printf("get: %v", err)
		_ = txn.Abort()
		return
	}
	fmt.Printf("get user:1 (read-your-own-write): ok=%v value=%s\n", ok, value)

	if err := txn.Commit(); err != nil {
		log.Printf("commit: %v", err)
		return
	}
	fmt.Printf("transaction %d committed\n", txn.ID())
}

func abortDiscardsWrites(engine *transaction.Engine) {
	txn, err := engine.Begin()
	if err != nil {
		log.Printf("begin: %v", err)
		return
	}

	if err := txn.Put("rollback_test", []byte("this will be rolled back")); err != nil {
		log.Printf("put: %v", err)
		return
	}
	_ = txn.Abort()
	fmt.Println("aborted transaction with a buffered write")

	verify, err := engine.Begin()
	if err != nil {
		log.Printf("begin: %v", err)
		return
	}
	defer verify.Abort()

	_, ok, err := verify.Get("rollback_test")
	if err != nil {
		log.Printf("get: %v", err)
		return
	}
	if !ok {
		fmt.Println("confirmed: rolled back write is not visible")
	} else {
		fmt.Println("warning: rolled back write is visible")
	}
}

func concurrentDisjointKeys(engine *transaction.Engine) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := engine.Begin()
			if err != nil {
				log.Printf("txn %d begin: %v", i, err)
				return
			}
			key := fmt.Sprintf("concurrent:%d", i)
			if err := txn.Put(key, []byte("data")); err != nil {
				log.Printf("txn %d put: %v", i, err)
				_ = txn.Abort()
				return
			}
			if err := txn.Commit(); err != nil {
				log.Printf("txn %d commit: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	fmt.Println("10 concurrent transactions on disjoint keys completed")
}

// classicDeadlock starts two transactions that acquire "a" and "b" in
// opposite order, forcing the wait-for graph into a 2-cycle. Exactly one
// of them (the younger, by start_seq) is aborted by the engine itself;
// the survivor completes normally.
func classicDeadlock(engine *transaction.Engine) {
	t1, err := engine.Begin()
	if err != nil {
		log.Printf("begin t1: %v", err)
		return
	}
	t2, err := engine.Begin()
	if err != nil {
		log.Printf("begin t2: %v", err)
		_ = t1.Abort()
		return
	}
	fmt.Printf("started t1=%d (seq %d) and t2=%d (seq %d)\n",
		t1.ID(), t1.StartSeq(), t2.ID(), t2.StartSeq())

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := t1.Put("a", []byte("t1-a")); err != nil {
			fmt.Printf("t1 put(a): %v\n", err)
			return
		}
		time.Sleep(20 * time.Millisecond)
		if err := t1.Put("b", []byte("t1-b")); err != nil {
			fmt.Printf("t1 put(b): %v (expected if t1 was the victim)\n", err)
			_ = t1.Abort()
			return
		}
		if err := t1.Commit(); err != nil {
			fmt.Printf("t1 commit: %v\n", err)
			return
		}
		fmt.Println("t1 committed")
	}()

	go func() {
		defer wg.Done()
		if err := t2.Put("b", []byte("t2-b")); err != nil {
			fmt.Printf("t2 put(b): %v\n", err)
			return
		}
		time.Sleep(20 * time.Millisecond)
		if err := t2.Put("a", []byte("t2-a")); err != nil {
			fmt.Printf("t2 put(a): %v (expected if t2 was the victim)\n", err)
			_ = t2.Abort()
			return
		}
		if err := t2.Commit(); err != nil {
			fmt.Printf("t2 commit: %v\n", err)
			return
		}
		fmt.Println("t2 committed")
	}()

	wg.Wait()
}
