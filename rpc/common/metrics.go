package common

import (
	"fmt"
	"io"
	"sort"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Exported counters (prometheus text format)
// --------------------------------------------------------------------------

var (
	ConnectionsAccepted = vmetrics.NewCounter("marines_connections_accepted_total")
	ConnectionsActive   = vmetrics.NewCounter("marines_connections_active")
	ProtocolErrors      = vmetrics.NewCounter("marines_protocol_errors_total")
	AuthFailures        = vmetrics.NewCounter("marines_auth_failures_total")
)

// RequestCounter returns the counter of handled requests of one kind
func RequestCounter(kind string) *vmetrics.Counter {
	return vmetrics.GetOrCreateCounter(fmt.Sprintf(`marines_requests_total{kind=%q}`, kind))
}

// WritePrometheus writes all counters plus process metrics to w
func WritePrometheus(w io.Writer) {
	vmetrics.WritePrometheus(w, true)
}

// --------------------------------------------------------------------------
// Command timers (logged on shutdown)
// --------------------------------------------------------------------------

var commandTimers = gometrics.NewRegistry()

// CommandTimer returns the latency timer of a command
func CommandTimer(name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer(name, commandTimers)
}

// LogCommandTimers writes one line per command timer to log
func LogCommandTimers(log logger.ILogger) {
	type line struct {
		name  string
		timer gometrics.Timer
	}
	var lines []line
	commandTimers.Each(func(name string, i interface{}) {
		if t, ok := i.(gometrics.Timer); ok && t.Count() > 0 {
			lines = append(lines, line{name, t})
		}
	})
	sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })

	for _, l := range lines {
		s := l.timer.Snapshot()
		log.Infof("%-32s count=%d mean=%s p99=%s max=%s", l.name, s.Count(),
			time.Duration(s.Mean()), time.Duration(s.Percentile(0.99)), time.Duration(s.Max()))
	}
}
