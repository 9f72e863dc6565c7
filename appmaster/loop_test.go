package appmaster

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/skyportsystems/incubator-samza/metrics"
	"github.com/skyportsystems/incubator-samza/protocol"
	"github.com/skyportsystems/incubator-samza/retry"
)

func newLoopHarness(taskCount int, rm *fakeRM, nm *fakeNM) (*EventLoop, *State, *TaskManager, *Lifecycle) {
	state := NewState(taskCount)
	m := metrics.New(prometheus.NewRegistry())
	failures := retry.NewFailureController(8, 300000, clock.New())

	tm, err := NewTaskManager(state, rm, nm, failures, testConfig(), defaultPartitions(), nil, "", m)
	if err != nil {
		panic(err)
	}
	lc := NewLifecycle(state, rm, "am-host", 12345, "", protocol.Resource{MemoryMB: 1024, CPUCores: 1})

	loop := NewEventLoop(state, m, clock.New(), 10*time.Millisecond, 0, lc, tm)
	rm.listener = loop
	nm.listener = loop
	return loop, state, tm, lc
}

// end to end: init requests a container, the cluster grants it, the worker
// exits cleanly, the loop unregisters and returns
func TestLoopRunsJobToCompletion(t *testing.T) {
	exitClean := protocol.EXIT_SUCCESS
	rm := &fakeRM{
		maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8},
		autoAllocate:  true,
	}
	nm := &fakeNM{autoExit: &exitClean}

	loop, state, _, _ := newLoopHarness(1, rm, nm)
	loop.Run()

	assert.Equal(t, protocol.JOB_STATUS_SUCCEEDED, state.Status())
	assert.True(t, rm.unregistered)
	assert.Equal(t, protocol.JOB_STATUS_SUCCEEDED, rm.finalStatus)
	assert.True(t, nm.stopped)

	snap := state.LatestSnapshot()
	assert.Equal(t, []int{0}, snap.FinishedTasks)
}

// a capability rejection during init must prevent the task manager from ever
// requesting containers
func TestLoopCapabilityRejectionSkipsTaskManagerInit(t *testing.T) {
	rm := &fakeRM{maxCapability: protocol.Resource{MemoryMB: 512, CPUCores: 2}}
	nm := &fakeNM{}

	loop, state, _, _ := newLoopHarness(1, rm, nm)
	loop.Run()

	assert.Empty(t, rm.requests)
	assert.False(t, nm.started)
	assert.Equal(t, protocol.JOB_STATUS_FAILED, state.Status())
	assert.True(t, rm.unregistered)
	assert.Equal(t, protocol.JOB_STATUS_FAILED, rm.finalStatus)
}

// a reboot signal from the resource manager fails the job
func TestLoopRebootShutsDown(t *testing.T) {
	rm := &fakeRM{maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8}}
	nm := &fakeNM{}

	loop, state, _, _ := newLoopHarness(1, rm, nm)
	loop.Rebooted()
	loop.Run()

	assert.Equal(t, protocol.JOB_STATUS_FAILED, state.Status())
	assert.True(t, rm.unregistered)
}

// an external shutdown request stops the loop without failing the job
func TestLoopExternalShutdownRequest(t *testing.T) {
	rm := &fakeRM{maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8}}
	nm := &fakeNM{}

	loop, state, _, _ := newLoopHarness(1, rm, nm)
	loop.ShutdownRequested()
	loop.Run()

	assert.Equal(t, protocol.JOB_STATUS_UNDEFINED, state.Status())
	assert.True(t, rm.unregistered)
}

// crash, replacement, then success, all through the loop
func TestLoopRetriesCrashThenSucceeds(t *testing.T) {
	rm := &fakeRM{
		maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8},
		autoAllocate:  true,
	}
	nm := &fakeNM{}

	loop, state, _, _ := newLoopHarness(1, rm, nm)

	// first worker crashes, the replacement exits cleanly
	crash := protocol.ExitCode(1)
	clean := protocol.EXIT_SUCCESS
	nm.autoExit = &crash
	launches := 0
	nm.onLaunch = func() {
		launches++
		if launches == 1 {
			nm.autoExit = &clean
		}
	}

	loop.Run()

	assert.Equal(t, protocol.JOB_STATUS_SUCCEEDED, state.Status())
	assert.Equal(t, 2, launches)
	assert.Len(t, rm.requests, 2)
	snap := state.LatestSnapshot()
	assert.Equal(t, 1, snap.FailedContainers)
}

// heartbeat ticks reach heartbeat-only listeners, e.g. the local cluster's
// pending-grant sweep
func TestLoopHeartbeatDrivesHeartbeatFunc(t *testing.T) {
	rm := &fakeRM{maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8}}
	nm := &fakeNM{}
	state := NewState(1)
	m := metrics.New(prometheus.NewRegistry())
	failures := retry.NewFailureController(8, 300000, clock.New())

	tm, err := NewTaskManager(state, rm, nm, failures, testConfig(), defaultPartitions(), nil, "", m)
	assert.Nil(t, err)
	lc := NewLifecycle(state, rm, "am-host", 12345, "", protocol.Resource{MemoryMB: 1024, CPUCores: 1})

	ticks := 0
	var loop *EventLoop
	beat := HeartbeatFunc(func() {
		ticks++
		loop.ShutdownRequested()
	})
	loop = NewEventLoop(state, m, clock.New(), 5*time.Millisecond, 0, lc, tm, beat)
	rm.listener = loop

	loop.Run()
	assert.GreaterOrEqual(t, ticks, 1)
}
