// Package sysinfo resolves host capability questions the miner needs at
// startup: how many worker threads to run, and whether there is plausibly
// enough free memory to hold a ~1 GiB ROM.
package sysinfo

import (
	"fmt"

	"github.com/elastic/gosigar"
	"github.com/shirou/gopsutil/v3/cpu"
)

// ResolveThreads implements spec.md §3's Config.num_threads rule: ≤0 means
// "use host parallelism", with a fallback of 1 if the probe reports no
// CPUs. A failure of the probe itself is returned as an error, not replaced
// by the fallback — spec.md §7 marks a parallelism-probe failure as fatal
// at startup, so the caller should treat a non-nil error as fatal.
func ResolveThreads(numThreads int) (int, error) {
	if numThreads > 0 {
		return numThreads, nil
	}
	counts, err := cpu.Counts(true)
	if err != nil {
		return 0, fmt.Errorf("probing host parallelism: %w", err)
	}
	if counts <= 0 {
		return 1, nil
	}
	return counts, nil
}

// CheckFreeMemory reports (via the returned bool) whether at least
// requiredBytes of free memory appears to be available before the caller
// allocates a Rom. This is a non-fatal preflight: spec.md never makes
// memory pressure a startup-fatal condition, so a failed or negative probe
// only downgrades confidence, it does not abort the run.
func CheckFreeMemory(requiredBytes uint64) (available uint64, ok bool, err error) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, false, err
	}
	return mem.Free, mem.Free >= requiredBytes, nil
}
