package engine

import "time"

// Listener receives job events. All callbacks fire on the job's worker
// goroutine, in production order, with exactly one terminal Done.
type Listener interface {
	OnLog(jobID, text string)
	OnStatus(jobID, text string)
	OnProgress(jobID string, percent float64)
	OnProgressInfo(jobID string, bytesPerSecond float64, eta time.Duration)
	OnDone(jobID string, ok bool, message string)
}

type nopListener struct{}

func (nopListener) OnLog(string, string)                          {}
func (nopListener) OnStatus(string, string)                       {}
func (nopListener) OnProgress(string, float64)                    {}
func (nopListener) OnProgressInfo(string, float64, time.Duration) {}
func (nopListener) OnDone(string, bool, string)                   {}

// Callbacks adapts plain functions to the Listener interface; nil fields
// are ignored.
type Callbacks struct {
	Log          func(jobID, text string)
	Status       func(jobID, text string)
	Progress     func(jobID string, percent float64)
	ProgressInfo func(jobID string, bytesPerSecond float64, eta time.Duration)
	Done         func(jobID string, ok bool, message string)
}

func (c Callbacks) OnLog(jobID, text string) {
	if c.Log != nil {
		c.Log(jobID, text)
	}
}

func (c Callbacks) OnStatus(jobID, text string) {
	if c.Status != nil {
		c.Status(jobID, text)
	}
}

func (c Callbacks) OnProgress(jobID string, percent float64) {
	if c.Progress != nil {
		c.Progress(jobID, percent)
	}
}

func (c Callbacks) OnProgressInfo(jobID string, bytesPerSecond float64, eta time.Duration) {
	if c.ProgressInfo != nil {
		c.ProgressInfo(jobID, bytesPerSecond, eta)
	}
}

func (c Callbacks) OnDone(jobID string, ok bool, message string) {
	if c.Done != nil {
		c.Done(jobID, ok, message)
	}
}
