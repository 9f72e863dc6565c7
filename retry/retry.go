package retry

import (
	"github.com/benbjohnson/clock"

	"github.com/skyportsystems/incubator-samza/protocol"
)

type Decision int8

const (
	RETRY = Decision(0)
	FATAL = Decision(1)
)

func (d Decision) String() string {
	if d == FATAL {
		return "fatal"
	}
	return "retry"
}

type taskFailure struct {
	count         int
	lastFailureMS int64
}

// FailureController decides whether a crashed task group should be retried or
// should fail the whole job. A task becomes fatal only when it exceeds the
// retry budget with its two most recent failures closer together than the
// window, so transient flaps reset the count while tight crash loops do not.
//
// Not safe for concurrent use; all calls happen on the event-dispatcher
// goroutine.
type FailureController struct {
	retryCount int
	windowMS   int64
	clock      clock.Clock
	failures   map[protocol.TaskID]taskFailure
}

// NewFailureController creates a controller with the given per-task budget.
// retryCount == 0 makes every failure fatal; retryCount < 0 retries forever.
func NewFailureController(retryCount int, windowMS int64, clk clock.Clock) *FailureController {
	return &FailureController{
		retryCount: retryCount,
		windowMS:   windowMS,
		clock:      clk,
		failures:   make(map[protocol.TaskID]taskFailure),
	}
}

func (f *FailureController) RecordFailure(taskID protocol.TaskID) Decision {
	if f.retryCount == 0 {
		return FATAL
	}
	if f.retryCount < 0 {
		return RETRY
	}

	now := f.clock.Now().UnixMilli()
	prev := f.failures[taskID]
	newCount := prev.count + 1

	if newCount > f.retryCount {
		if now-prev.lastFailureMS < f.windowMS {
			return FATAL
		}
		// the last failure was long enough ago; start a fresh window
		f.failures[taskID] = taskFailure{count: 1, lastFailureMS: now}
		return RETRY
	}

	f.failures[taskID] = taskFailure{count: newCount, lastFailureMS: now}
	return RETRY
}

// RecordSuccess clears the failure history for a task that completed cleanly.
func (f *FailureController) RecordSuccess(taskID protocol.TaskID) {
	delete(f.failures, taskID)
}

// FailureCount reports the current in-window failure count, for status surfaces.
func (f *FailureController) FailureCount(taskID protocol.TaskID) int {
	return f.failures[taskID].count
}
