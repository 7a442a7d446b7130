package stats

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// statsView is the JSON shape served by the debug endpoint.
type statsView struct {
	Hashes      int64 `json:"hashes_total"`
	Success     int32 `json:"success"`
	Skip        int32 `json:"skip"`
	Error       int32 `json:"error"`
	TotalTask   int32 `json:"total_task"`
	TaskElapsed int64 `json:"task_elapsed_sec"`
}

// NewDebugHandler builds a tiny read-only HTTP surface exposing the
// Ledger/Scratch as JSON at GET /stats, for an operator dashboard to poll.
// This is pure observability, same as the Monitor: it never feeds back
// into claim/solve/submit control flow (spec.md §4.7).
func NewDebugHandler(ledger *Ledger, scratch *Scratch) http.Handler {
	router := httprouter.New()
	router.GET("/stats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		view := statsView{
			Hashes:      ledger.Hashes(),
			Success:     ledger.Success(),
			Skip:        ledger.Skip(),
			Error:       ledger.Error(),
			TotalTask:   ledger.TotalTask(),
			TaskElapsed: int64(scratch.Elapsed(time.Now()).Seconds()),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	})

	// CORS is wide open: this is a same-host operator dashboard, not a
	// public API, and the endpoint is read-only.
	return cors.AllowAll().Handler(router)
}
