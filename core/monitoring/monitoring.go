// Package monitoring reports unexpected failures of the control loop to an
// error tracker.
package monitoring

import (
	"fmt"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic reports a value recovered from a panic.
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the process monitor.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// Current returns the process monitor.
func Current() Monitor { return current }

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	current.CaptureException(err, tags)
}

// Flush flushes buffered events.
func Flush(d time.Duration) { current.Flush(d) }

// Guard runs fn and turns a panic into an error after reporting it to m.
func Guard(m Monitor, tags map[string]string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if m != nil {
				m.CapturePanic(r, tags)
			}
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	fn()
	return nil
}
