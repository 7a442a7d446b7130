package romhash

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/defensio-labs/coredrill/internal/domain"
)

// H implements spec.md §4.4's memory-hard digest: H(preimage, rom, rounds,
// blockSize) -> 32 bytes. rounds and blockSize are protocol constants
// (always 8 and 256 per spec.md §4.5) that must agree between a miner and
// a validator; they are accepted as parameters here rather than hardcoded
// so a test can probe the function's shape without depending on the
// production constants. rom only needs to satisfy domain.RomHandle so
// callers holding the narrow interface (not a concrete *Rom) can call H
// directly.
func H(preimage []byte, rom domain.RomHandle, rounds, blockSize int) [32]byte {
	buf := rom.Bytes()
	state, _ := blake2b.New256(nil)
	state.Write(preimage)

	acc := state.Sum(nil)
	for round := 0; round < rounds; round++ {
		idx := romIndex(acc, round, len(buf), blockSize)
		window := buf[idx : idx+blockSize]

		h, _ := blake2b.New256(nil)
		h.Write(acc)
		h.Write(window)
		acc = h.Sum(nil)
	}

	var out [32]byte
	copy(out[:], acc)
	return out
}

// romIndex derives a blockSize-aligned offset into a buffer of length n
// from the current accumulator and round number.
func romIndex(acc []byte, round, n, blockSize int) int {
	v := binary.BigEndian.Uint64(acc[:8]) + uint64(round)
	blocks := uint64(n / blockSize)
	if blocks == 0 {
		return 0
	}
	return int(v%blocks) * blockSize
}
