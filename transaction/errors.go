package transaction

import "errors"

var (
	// ErrNoSlot is returned by Begin when every transaction slot is occupied.
	ErrNoSlot = errors.New("transaction: no free slot")

	// ErrAborted is returned by any operation on a transaction that has been
	// marked aborted, either by explicit Abort or by deadlock victim selection.
	ErrAborted = errors.New("transaction: aborted")

	// ErrWriteSetFull is returned by Put when a transaction's write-set
	// capacity (MaxWritesPerTxn) has been exhausted.
	ErrWriteSetFull = errors.New("transaction: write set full")

	// ErrKeyTooLong is returned by Put when a key exceeds KeyLengthMax.
	ErrKeyTooLong = errors.New("transaction: key exceeds maximum length")
)
