// Admission control - bounds concurrent upstream work.
//
// DESIGN: A single process-wide counter, compare-and-swapped so its stored
// value never exceeds the cap, even transiently. Excess requests are rejected
// immediately with 429, never queued. The caller must pair every successful
// TryAdmit with exactly one Release on every exit path.
package gateway

import "sync/atomic"

// AdmissionController gates how many requests may be in flight at once.
type AdmissionController struct {
	max     int64
	current atomic.Int64
}

// NewAdmissionController creates a controller allowing up to max in-flight requests.
func NewAdmissionController(max int) *AdmissionController {
	return &AdmissionController{max: int64(max)}
}

// TryAdmit reserves a slot. Returns false when the limit is reached.
// The counter stays within [0, max] at all times; a rejection never bumps it.
func (a *AdmissionController) TryAdmit() bool {
	for {
		cur := a.current.Load()
		if cur >= a.max {
			return false
		}
		if a.current.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot reserved by TryAdmit.
func (a *AdmissionController) Release() {
	a.current.Add(-1)
}

// InFlight returns the current number of admitted requests.
func (a *AdmissionController) InFlight() int64 {
	return a.current.Load()
}
