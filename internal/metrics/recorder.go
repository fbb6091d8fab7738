// Package metrics exposes the observability hooks of the warehouse core.
package metrics

import "time"

// Recorder receives the domain measurements. Implementations forward to Prometheus;
// NoopRecorder is used when metrics are disabled.
type Recorder interface {
	// IncStockMovement counts one applied position change by reason (manual, task_item...).
	IncStockMovement(reason string, delta int)
	IncCapacityRejection()
	IncLowStock()
	IncTaskItemCompleted(direction string, success bool)
	IncTaskFinished()
	IncForkliftTransition(event string)
	SetForkliftsDue(n int)
	ObserveHTTPRequest(route, method string, status int, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) IncStockMovement(string, int)                           {}
func (NoopRecorder) IncCapacityRejection()                                  {}
func (NoopRecorder) IncLowStock()                                           {}
func (NoopRecorder) IncTaskItemCompleted(string, bool)                      {}
func (NoopRecorder) IncTaskFinished()                                       {}
func (NoopRecorder) IncForkliftTransition(string)                           {}
func (NoopRecorder) SetForkliftsDue(int)                                    {}
func (NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
