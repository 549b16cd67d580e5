package reconcile

import (
	"strings"

	"lunchmind/place"
)

// DefaultClosedPhrases mark a listing that is out of business, for good or
// for now. Matching is case-insensitive on the hours/status text.
var DefaultClosedPhrases = []string{
	"permanently closed",
	"temporarily closed",
	"closed permanently",
	"closed temporarily",
	"永久停業",
	"暫停營業",
	"暫時關閉",
	"停止營業",
	"已歇業",
}

var (
	shutPhrases = []string{"closed", "opens", "已打烊", "休息中", "即將營業"}
	openPhrases = []string{"open", "closes", "營業中", "即將打烊", "24 小時營業"}
)

func (r *Reconciler) isClosed(c place.ResolvedCandidate) bool {
	status := strings.ToLower(c.HoursText)
	if status == "" {
		return false
	}
	for _, p := range r.closed {
		if strings.Contains(status, p) {
			return true
		}
	}
	return false
}

// openNow reads "open right now" off hours text. Shut phrases are checked
// first because "Closed ⋅ Opens 11 AM" mentions both.
func openNow(hours string) *bool {
	status := strings.ToLower(strings.TrimSpace(hours))
	if status == "" {
		return nil
	}
	for _, p := range shutPhrases {
		if strings.Contains(status, p) {
			v := false
			return &v
		}
	}
	for _, p := range openPhrases {
		if strings.Contains(status, p) {
			v := true
			return &v
		}
	}
	return nil
}
