package appmaster

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skyportsystems/incubator-samza/cluster"
	"github.com/skyportsystems/incubator-samza/config"
	"github.com/skyportsystems/incubator-samza/metrics"
	"github.com/skyportsystems/incubator-samza/protocol"
	"github.com/skyportsystems/incubator-samza/retry"
)

type fakeRM struct {
	listener      cluster.Listener
	maxCapability protocol.Resource
	registerErr   error

	requests     []cluster.ContainerRequest
	released     []string
	registered   bool
	unregistered bool
	finalStatus  protocol.JobStatus
	finalMessage string

	// when set, every container request is granted immediately, the way a
	// lightly loaded cluster behaves
	autoAllocate bool
	nextID       int
}

func (rm *fakeRM) Start(listener cluster.Listener) error {
	rm.listener = listener
	return nil
}

func (rm *fakeRM) Register(host string, port int, trackingURL string) (protocol.Resource, error) {
	rm.registered = true
	return rm.maxCapability, rm.registerErr
}

func (rm *fakeRM) RequestContainer(req cluster.ContainerRequest) error {
	rm.requests = append(rm.requests, req)
	if rm.autoAllocate {
		rm.nextID++
		rm.listener.ContainerAllocated(protocol.Container{
			ID:   string(rune('A' + rm.nextID - 1)),
			Host: "node-1",
			Resource: protocol.Resource{
				MemoryMB: req.MemoryMB,
				CPUCores: req.CPUCores,
			},
		})
	}
	return nil
}

func (rm *fakeRM) ReleaseContainer(containerID string) error {
	rm.released = append(rm.released, containerID)
	return nil
}

func (rm *fakeRM) Unregister(status protocol.JobStatus, message string) error {
	rm.unregistered = true
	rm.finalStatus = status
	rm.finalMessage = message
	return nil
}

type launchRecord struct {
	container protocol.Container
	ctx       *cluster.LaunchContext
}

type fakeNM struct {
	started  bool
	stopped  bool
	launches []launchRecord

	// when set, every launched worker immediately exits with this code,
	// reported through the listener
	autoExit *protocol.ExitCode
	onLaunch func()
	listener cluster.Listener
}

func (nm *fakeNM) Start() error {
	nm.started = true
	return nil
}

func (nm *fakeNM) Stop() error {
	nm.stopped = true
	return nil
}

func (nm *fakeNM) StartContainer(container protocol.Container, ctx *cluster.LaunchContext) error {
	nm.launches = append(nm.launches, launchRecord{container: container, ctx: ctx})
	exit := nm.autoExit
	if nm.onLaunch != nil {
		nm.onLaunch()
	}
	if exit != nil {
		nm.listener.ContainerCompleted(protocol.ContainerStatus{
			ContainerID: container.ID,
			ExitCode:    *exit,
		})
	}
	return nil
}

type harness struct {
	state *State
	rm    *fakeRM
	nm    *fakeNM
	tm    *TaskManager
	mock  *clock.Mock
	cfg   config.Config
}

func testConfig() config.Config {
	return config.Config{
		config.PackagePath: "/tmp/job-package.tgz",
	}
}

func defaultPartitions() []protocol.SystemStreamPartition {
	return []protocol.SystemStreamPartition{
		{System: "kafka", Stream: "pageviews", Partition: 0},
		{System: "kafka", Stream: "pageviews", Partition: 1},
		{System: "kafka", Stream: "clicks", Partition: 0},
		{System: "kafka", Stream: "clicks", Partition: 1},
	}
}

func newHarness(taskCount, retryCount int, windowMS int64) *harness {
	mock := clock.NewMock()
	cfg := testConfig()
	state := NewState(taskCount)
	rm := &fakeRM{maxCapability: protocol.Resource{MemoryMB: 8192, CPUCores: 8}}
	nm := &fakeNM{}
	failures := retry.NewFailureController(retryCount, windowMS, mock)
	m := metrics.New(prometheus.NewRegistry())

	tm, err := NewTaskManager(state, rm, nm, failures, cfg, defaultPartitions(), nil, "", m)
	if err != nil {
		panic(err)
	}
	return &harness{state: state, rm: rm, nm: nm, tm: tm, mock: mock, cfg: cfg}
}

func container(id string) protocol.Container {
	return protocol.Container{
		ID:       id,
		Host:     "node-1",
		Port:     8041,
		Resource: protocol.Resource{MemoryMB: 1024, CPUCores: 1},
	}
}

func completed(id string, exit protocol.ExitCode) protocol.ContainerStatus {
	return protocol.ContainerStatus{ContainerID: id, ExitCode: exit}
}
