package appmaster

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/golang/glog"

	"github.com/skyportsystems/incubator-samza/metrics"
	"github.com/skyportsystems/incubator-samza/protocol"
)

// Listener is the capability set dispatched by the event loop. Listeners are
// invoked sequentially in registration order on the dispatcher goroutine, so
// implementations need no locking of their own.
type Listener interface {
	OnInit()
	OnContainerAllocated(container protocol.Container)
	OnContainerCompleted(status protocol.ContainerStatus)
	OnHeartbeat()
	OnReboot()
	OnShutdown()
	ShouldShutdown() bool
}

// HeartbeatFunc adapts a plain function into a Listener that reacts only to
// heartbeat ticks, for collaborators that just need the loop's clock (e.g.
// the local cluster's pending-grant sweep).
type HeartbeatFunc func()

func (f HeartbeatFunc) OnInit()                                              {}
func (f HeartbeatFunc) OnContainerAllocated(container protocol.Container)    {}
func (f HeartbeatFunc) OnContainerCompleted(status protocol.ContainerStatus) {}
func (f HeartbeatFunc) OnHeartbeat()                                         { f() }
func (f HeartbeatFunc) OnReboot()                                            {}
func (f HeartbeatFunc) OnShutdown()                                          {}
func (f HeartbeatFunc) ShouldShutdown() bool                                 { return false }

type eventKind int8

const (
	evAllocated = eventKind(0)
	evCompleted = eventKind(1)
	evReboot    = eventKind(2)
	evShutdown  = eventKind(3)
	evHeartbeat = eventKind(4)
)

type event struct {
	kind      eventKind
	container protocol.Container
	status    protocol.ContainerStatus
}

const defaultQueueSize = 1024

// EventLoop serializes all resource-manager callbacks and heartbeat ticks
// onto one dispatcher goroutine, which is the only writer of job state.
// It implements cluster.Listener; callbacks enqueue onto a bounded FIFO
// queue drained by Run.
type EventLoop struct {
	state           *State
	metrics         *metrics.AppMasterMetrics
	clk             clock.Clock
	heartbeat       time.Duration
	shutdownTimeout time.Duration
	listeners       []Listener

	queue            chan event
	externalShutdown atomic.Bool
}

func NewEventLoop(
	state *State,
	m *metrics.AppMasterMetrics,
	clk clock.Clock,
	heartbeat time.Duration,
	shutdownTimeout time.Duration,
	listeners ...Listener,
) *EventLoop {
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	return &EventLoop{
		state:           state,
		metrics:         m,
		clk:             clk,
		heartbeat:       heartbeat,
		shutdownTimeout: shutdownTimeout,
		listeners:       listeners,
		queue:           make(chan event, defaultQueueSize),
	}
}

// cluster.Listener; called from the resource-manager client's goroutines.

func (el *EventLoop) ContainerAllocated(container protocol.Container) {
	el.enqueue(event{kind: evAllocated, container: container})
}

func (el *EventLoop) ContainerCompleted(status protocol.ContainerStatus) {
	el.enqueue(event{kind: evCompleted, status: status})
}

func (el *EventLoop) Rebooted() {
	el.enqueue(event{kind: evReboot})
}

func (el *EventLoop) ShutdownRequested() {
	el.externalShutdown.Store(true)
	el.enqueue(event{kind: evShutdown})
}

func (el *EventLoop) enqueue(ev event) {
	select {
	case el.queue <- ev:
	default:
		log.Errorf("Event queue full, dropping event kind %v", ev.kind)
	}
}

// Run drives the job to completion: init fan-out, then dispatch until any
// listener signals shutdown, then one OnShutdown per listener. Blocks until
// the job is done; the final status is on the State.
func (el *EventLoop) Run() {
	// a listener that rejects during init (capability validation) prevents
	// later listeners from initializing at all
	for _, l := range el.listeners {
		if el.shouldShutdown() {
			break
		}
		l.OnInit()
	}
	el.publish()

	ticker := el.clk.Ticker(el.heartbeat)
	defer ticker.Stop()

	for !el.shouldShutdown() {
		select {
		case ev := <-el.queue:
			el.dispatch(ev)
		case <-ticker.C:
			el.dispatch(event{kind: evHeartbeat})
		}
		el.publish()
	}

	log.Infof("Shutting down with status %v", el.state.Status())
	el.shutdownListeners()
	el.publish()
}

// dispatch fans one event out to every listener in registration order. An
// already-dequeued event is always processed in full, even if a listener
// signals shutdown partway through.
func (el *EventLoop) dispatch(ev event) {
	for _, l := range el.listeners {
		switch ev.kind {
		case evAllocated:
			l.OnContainerAllocated(ev.container)
		case evCompleted:
			l.OnContainerCompleted(ev.status)
		case evReboot:
			l.OnReboot()
		case evHeartbeat:
			l.OnHeartbeat()
		case evShutdown:
			// external shutdown request; the flag is already set, the event
			// only wakes the loop
		}
	}
}

func (el *EventLoop) shouldShutdown() bool {
	if el.externalShutdown.Load() {
		return true
	}
	for _, l := range el.listeners {
		if l.ShouldShutdown() {
			return true
		}
	}
	return false
}

func (el *EventLoop) shutdownListeners() {
	if el.shutdownTimeout <= 0 {
		for _, l := range el.listeners {
			l.OnShutdown()
		}
		return
	}

	done := make(chan struct{})
	go func() {
		for _, l := range el.listeners {
			l.OnShutdown()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-el.clk.After(el.shutdownTimeout):
		log.Exitf("Shutdown grace timeout exceeded, exiting with status %v", el.state.Status())
	}
}

// publish refreshes the shared snapshot and the gauge metrics after every
// event.
func (el *EventLoop) publish() {
	el.state.PublishSnapshot()

	snap := el.state.LatestSnapshot()
	el.metrics.NeededContainers.Set(float64(snap.NeededContainers))
	el.metrics.RunningTasks.Set(float64(len(snap.RunningTasks)))
	el.metrics.UnclaimedTasks.Set(float64(len(snap.UnclaimedTasks)))
	el.metrics.FinishedTasks.Set(float64(len(snap.FinishedTasks)))
	el.metrics.JobStatus.Set(float64(el.state.Status()))
}
