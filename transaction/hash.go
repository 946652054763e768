package transaction

import "hash/fnv"

// bucketIndex hashes key with FNV-1a and folds it into [0, numBuckets).
// The same index space is shared by the lock table and the KV map so
// that a lock on a key's bucket and the map shard holding that key's
// value are always the same slot. Two distinct keys landing in the same
// bucket share one lock — safe over-locking that only costs concurrency,
// never correctness.
func bucketIndex(key string, numBuckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % numBuckets
}
