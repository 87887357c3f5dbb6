package collector

import (
	"sync/atomic"
	"time"
)

// minHealthWindow is the floor for the staleness window so short scrape
// intervals do not make health flap.
const minHealthWindow = 90 * time.Second

// lastPassSuccessUnixNano is 0 until the first pass completes.
var lastPassSuccessUnixNano int64

// MarkPassOK records the completion time of the latest collection pass.
func MarkPassOK(now time.Time) {
	atomic.StoreInt64(&lastPassSuccessUnixNano, now.UnixNano())
}

// HealthSnapshot reports whether the exporter is healthy and, if not, why.
// Collection is scrape-driven, so "no pass yet" just means Prometheus has not
// come by and is treated as healthy. Once passes have happened, one more
// recent than max(3*scrapeInterval, 90s) is expected.
func HealthSnapshot(scrapeInterval time.Duration, now time.Time) (healthy bool, reason string) {
	stamp := atomic.LoadInt64(&lastPassSuccessUnixNano)
	if stamp == 0 {
		return true, "no pass completed yet"
	}

	window := max(3*scrapeInterval, minHealthWindow)

	if now.Sub(time.Unix(0, stamp)) > window {
		return false, "last pass too old"
	}

	return true, ""
}
