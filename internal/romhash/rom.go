// Package romhash implements the memory-hard ROM construction and digest
// function behind spec.md's "H(preimage, rom) -> 32 bytes" black box. The
// real mining protocol treats this primitive as an external collaborator;
// this package supplies one concrete, deterministic implementation behind
// the same Rom/H boundary so the rest of the system is runnable and
// testable without an external dependency the retrieved examples never
// show a Go binding for.
package romhash

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Production sizing constants from spec.md §3/§4.5. Tests use
// NewRomWithSizes to avoid allocating a full gigabyte per case.
const (
	PreSize       = 16 * 1024 * 1024 // 16 MiB
	MixingNumbers = 4
	FinalSize     = 1024 * 1024 * 1024 // 1 GiB
)

// Rom is the read-only memory-hard mixing table. It is never mutated after
// NewRom returns, which is what lets every search worker and every Task
// built from the same seed share one buffer by reference.
type Rom struct {
	seed string
	buf  []byte
}

// Seed returns the no_pre_mine string the Rom was derived from.
func (r *Rom) Seed() string { return r.seed }

// Bytes returns the backing buffer. Callers must not write to it.
func (r *Rom) Bytes() []byte { return r.buf }

// NewRom builds the production-sized Rom: a two-step generator at
// {pre_size: 16 MiB, mixing_numbers: 4, final_size: 1 GiB}, deterministic
// in noPreMine.
func NewRom(noPreMine string) *Rom {
	return NewRomWithSizes(noPreMine, PreSize, MixingNumbers, FinalSize)
}

// NewRomWithSizes is the parameterized two-step generator. Step one fills
// a preSize seed buffer by expanding noPreMine with a counter-mode hash
// stream, then runs mixingNumbers self-mixing passes over it. Step two
// expands the mixed buffer to finalSize by hashing successive windows of
// it together with a block counter, the standard memory-hard "fill from a
// small seed" shape.
func NewRomWithSizes(noPreMine string, preSize, mixingNumbers, finalSize int) *Rom {
	pre := expand([]byte(noPreMine), preSize)

	for pass := 0; pass < mixingNumbers; pass++ {
		mix(pre, pass)
	}

	final := expandFrom(pre, finalSize)

	return &Rom{seed: noPreMine, buf: final}
}

// expand fills an n-byte buffer with a blake2b counter-mode stream seeded
// by seed.
func expand(seed []byte, n int) []byte {
	out := make([]byte, n)
	var counter [8]byte
	const blockSize = 64
	for off := 0; off < n; off += blockSize {
		binary.BigEndian.PutUint64(counter[:], uint64(off/blockSize))
		h, _ := blake2b.New512(nil)
		h.Write(seed)
		h.Write(counter[:])
		sum := h.Sum(nil)
		end := off + blockSize
		if end > n {
			end = n
		}
		copy(out[off:end], sum[:end-off])
	}
	return out
}

// mix performs one self-mixing pass: each 64-byte block is XORed with the
// hash of the block `stride` positions ahead of it (wrapping), so earlier
// blocks depend on later ones, and the last blocks, through the wrap, on
// the first ones already mixed in the same pass.
func mix(buf []byte, pass int) {
	const blockSize = 64
	n := len(buf)
	blocks := n / blockSize
	if blocks == 0 {
		return
	}
	stride := 1 + pass
	tmp := make([]byte, blockSize)
	for i := 0; i < blocks; i++ {
		off := i * blockSize
		src := ((i+stride)%blocks + blocks) % blocks * blockSize

		h, _ := blake2b.New512(nil)
		h.Write(buf[src : src+blockSize])
		h.Write([]byte{byte(pass)})
		sum := h.Sum(nil)
		copy(tmp, sum[:blockSize])

		for j := 0; j < blockSize; j++ {
			buf[off+j] ^= tmp[j]
		}
	}
}

// expandFrom expands a mixed seed buffer to n bytes, each 32-byte block of
// output derived from a sha256 of (seed window || block index), rotating
// through the seed buffer.
func expandFrom(seed []byte, n int) []byte {
	out := make([]byte, n)
	const blockSize = sha256.Size
	windows := len(seed) / blockSize
	if windows == 0 {
		windows = 1
	}
	var idx [8]byte
	for off := 0; off < n; off += blockSize {
		w := (off / blockSize) % windows
		wOff := w * blockSize
		wEnd := wOff + blockSize
		if wEnd > len(seed) {
			wEnd = len(seed)
		}

		binary.BigEndian.PutUint64(idx[:], uint64(off/blockSize))
		h := sha256.New()
		h.Write(seed[wOff:wEnd])
		h.Write(idx[:])
		sum := h.Sum(nil)

		end := off + blockSize
		if end > n {
			end = n
		}
		copy(out[off:end], sum[:end-off])
	}
	return out
}
