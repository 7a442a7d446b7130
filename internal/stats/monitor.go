package stats

import (
	"os"
	"strconv"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/fjl/memsize"
	"github.com/olekukonko/tablewriter"

	"github.com/defensio-labs/coredrill/internal/xlog"
)

var log = xlog.New("stats")

// monitorInterval is spec.md §4.7's 60-second sampling cadence.
const monitorInterval = 60 * time.Second

// Monitor is the stats/monitor background goroutine (spec.md §4.7): it
// wakes every 60s, samples the Ledger's hash counter and computes an
// interval rate, and reports success/skip/error/total_task plus the
// elapsed time of the in-flight task. It never influences control flow.
type Monitor struct {
	ledger  *Ledger
	scratch *Scratch
	// romBytes, when non-nil, is sized with memsize to report the active
	// ROM set's resident footprint alongside the counters.
	romBytes func() [][]byte
}

// NewMonitor builds a Monitor over ledger/scratch. romBytes is optional
// (nil disables the memsize line).
func NewMonitor(ledger *Ledger, scratch *Scratch, romBytes func() [][]byte) *Monitor {
	return &Monitor{ledger: ledger, scratch: scratch, romBytes: romBytes}
}

// Run blocks, sampling and logging every monitorInterval, until stop is
// closed. It is meant to be launched with `go`.
func (m *Monitor) Run(stop <-chan struct{}) {
	// monotime.Now anchors the rate calculation to a monotonic clock so a
	// wall-clock step (NTP adjustment, DST) never skews the interval rate.
	startMono := monotime.Now()
	prev := m.ledger.Snapshot(startMono)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := monotime.Now()
			cur := m.ledger.Snapshot(now)
			rate := RateSince(prev, cur)
			prev = cur

			elapsed := m.scratch.Elapsed(time.Now())

			log.Info("mining stats",
				"hash_rate", strconv.FormatFloat(rate, 'f', 1, 64)+"/s",
				"hashes_total", cur.Hashes,
				"success", cur.Success,
				"skip", cur.Skip,
				"error", cur.Error,
				"total_task", cur.Total,
				"task_elapsed", elapsed.String(),
			)

			m.printTable(cur, rate, elapsed)
		}
	}
}

func (m *Monitor) printTable(s Snapshot, rate float64, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"hash/s", "hashes", "success", "skip", "error", "total", "task elapsed"})
	table.Append([]string{
		strconv.FormatFloat(rate, 'f', 1, 64),
		strconv.FormatInt(s.Hashes, 10),
		strconv.Itoa(int(s.Success)),
		strconv.Itoa(int(s.Skip)),
		strconv.Itoa(int(s.Error)),
		strconv.Itoa(int(s.Total)),
		elapsed.Round(time.Second).String(),
	})

	if m.romBytes != nil {
		sizes := memsize.Scan(m.romBytes())
		table.SetFooter([]string{"", "", "", "", "", "rom bytes", sizes.Report()})
	}

	table.Render()
}
