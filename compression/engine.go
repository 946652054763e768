// Package compression provides a transparent, optional value-compression
// layer for the transaction engine's key-value map. It is a supplemental
// feature layered entirely outside the engine's read/replace contract:
// Codec.Decode always recovers exactly what was last Encoded.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/nbtaylor/lockvault/config"
)

// envelope tags identify which algorithm, if any, produced a stored
// value's payload. A bare value is never stored without a tag byte, so
// Decode never has to guess.
const (
	tagNone byte = iota
	tagSnappy
	tagZstd
	tagLZ4
)

// Algorithm compresses and decompresses byte slices. This package
// measures nothing — no ratios, no timings — it only round-trips.
type Algorithm interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Codec wraps one Algorithm behind the size-gated envelope format and
// satisfies the narrow valueCodec interface the transaction package's
// kvMap expects.
type Codec struct {
	algo    Algorithm
	tag     byte
	minSize int
}

// New builds a Codec from cfg. Algorithm "none" (or empty) yields a nil
// Codec and nil error: the caller should pass that nil straight into
// transaction.New, which treats a nil codec as "store raw".
func New(cfg config.CompressionConfig) (*Codec, error) {
	switch cfg.Algorithm {
	case "", "none":
		return nil, nil
	case "snappy":
		return &Codec{algo: &snappyAlgorithm{}, tag: tagSnappy, minSize: cfg.MinSize}, nil
	case "lz4":
		return &Codec{algo: &lz4Algorithm{}, tag: tagLZ4, minSize: cfg.MinSize}, nil
	case "zstd":
		a, err := newZstdAlgorithm()
		if err != nil {
			return nil, fmt.Errorf("compression: init zstd: %w", err)
		}
		return &Codec{algo: a, tag: tagZstd, minSize: cfg.MinSize}, nil
	default:
		return nil, fmt.Errorf("compression: unknown algorithm %q", cfg.Algorithm)
	}
}

// Encode compresses value if it meets the configured minimum size,
// otherwise stores it raw; either way the result carries a one-byte tag
// identifying how to Decode it.
func (c *Codec) Encode(value []byte) ([]byte, error) {
	if len(value) < c.minSize {
		return append([]byte{tagNone}, value...), nil
	}

	compressed, err := c.algo.Compress(value)
	if err != nil {
		return nil, fmt.Errorf("compression: %s: %w", c.algo.Name(), err)
	}
	return append([]byte{c.tag}, compressed...), nil
}

// Decode reverses Encode, dispatching on the envelope's leading tag byte
// regardless of which algorithm the Codec is currently configured with —
// a value written under one algorithm still decodes correctly even if
// the engine's configuration changes later.
func (c *Codec) Decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("compression: empty envelope")
	}

	tag, payload := stored[0], stored[1:]
	if c.algo != nil && tag == c.tag {
		return c.algo.Decompress(payload)
	}

	switch tag {
	case tagNone:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case tagSnappy:
		return (&snappyAlgorithm{}).Decompress(payload)
	case tagLZ4:
		return (&lz4Algorithm{}).Decompress(payload)
	case tagZstd:
		a, err := newZstdAlgorithm()
		if err != nil {
			return nil, fmt.Errorf("compression: init zstd: %w", err)
		}
		return a.Decompress(payload)
	default:
		return nil, fmt.Errorf("compression: unknown envelope tag %d", tag)
	}
}

// lz4Algorithm implements LZ4 compression via github.com/pierrec/lz4/v4.
type lz4Algorithm struct{}

func (a *lz4Algorithm) Name() string { return "lz4" }

func (a *lz4Algorithm) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *lz4Algorithm) Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

// snappyAlgorithm implements Snappy compression via github.com/golang/snappy.
type snappyAlgorithm struct{}

func (a *snappyAlgorithm) Name() string { return "snappy" }

func (a *snappyAlgorithm) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (a *snappyAlgorithm) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// zstdAlgorithm implements zstd compression via github.com/klauspost/compress/zstd.
type zstdAlgorithm struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdAlgorithm() (*zstdAlgorithm, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdAlgorithm{encoder: enc, decoder: dec}, nil
}

func (a *zstdAlgorithm) Name() string { return "zstd" }

func (a *zstdAlgorithm) Compress(data []byte) ([]byte, error) {
	return a.encoder.EncodeAll(data, nil), nil
}

func (a *zstdAlgorithm) Decompress(data []byte) ([]byte, error) {
	return a.decoder.DecodeAll(data, nil)
}
