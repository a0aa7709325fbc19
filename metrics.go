package appshell

import "time"

// MetricsRecorder receives reconciliation measurements. The metrics package
// provides a Prometheus implementation.
type MetricsRecorder interface {
	ObservePass(mode, result string, duration time.Duration)
	ObserveTransition(action, result string)
	SetQueueDepth(depth int)
	SetMounted(count int)
}

// Pass modes reported to MetricsRecorder.
const (
	PassModePreStart = "prestart"
	PassModeFull     = "full"
)

type nopMetrics struct{}

func (nopMetrics) ObservePass(string, string, time.Duration) {}
func (nopMetrics) ObserveTransition(string, string)          {}
func (nopMetrics) SetQueueDepth(int)                         {}
func (nopMetrics) SetMounted(int)                            {}
