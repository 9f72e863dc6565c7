package appmaster

import (
	"fmt"
	"strconv"

	log "github.com/golang/glog"

	"github.com/skyportsystems/incubator-samza/cluster"
	"github.com/skyportsystems/incubator-samza/config"
	"github.com/skyportsystems/incubator-samza/metrics"
	"github.com/skyportsystems/incubator-samza/protocol"
	"github.com/skyportsystems/incubator-samza/retry"
	"github.com/skyportsystems/incubator-samza/util"
)

// TaskManager binds task groups to allocated containers, launches workers on
// the node manager, and decides per completion whether to request a
// replacement, release a surplus grant, or fail the job.
type TaskManager struct {
	state          *State
	rm             cluster.ResourceManagerClient
	nm             cluster.NodeManagerClient
	failures       *retry.FailureController
	cfg            config.Config
	partitions     []protocol.SystemStreamPartition
	creds          *cluster.Credentials
	coordinatorURL string
	metrics        *metrics.AppMasterMetrics

	tooManyFailedContainers bool
}

func NewTaskManager(
	state *State,
	rm cluster.ResourceManagerClient,
	nm cluster.NodeManagerClient,
	failures *retry.FailureController,
	cfg config.Config,
	partitions []protocol.SystemStreamPartition,
	creds *cluster.Credentials,
	coordinatorURL string,
	m *metrics.AppMasterMetrics,
) (*TaskManager, error) {
	// fail fast on a bad task.command.class instead of at first allocation
	if _, err := cluster.NewCommandBuilder(cfg.CommandClass()); err != nil {
		return nil, err
	}
	if creds == nil {
		creds = &cluster.Credentials{}
	}
	return &TaskManager{
		state:          state,
		rm:             rm,
		nm:             nm,
		failures:       failures,
		cfg:            cfg,
		partitions:     partitions,
		creds:          creds,
		coordinatorURL: coordinatorURL,
		metrics:        m,
	}, nil
}

func (tm *TaskManager) OnInit() {
	tm.state.resetTasks()

	if err := tm.nm.Start(); err != nil {
		log.Errorf("Failed to start node manager client: %v", err)
	}

	log.Infof("Requesting %v containers for %v task groups", tm.state.TaskCount(), tm.state.TaskCount())
	tm.requestContainers(tm.state.TaskCount())
}

func (tm *TaskManager) OnContainerAllocated(container protocol.Container) {
	taskID, ok := tm.state.smallestUnclaimed()
	if !ok {
		// surplus grant, hand it straight back
		log.Infof("Releasing surplus container %v", container.ID)
		tm.metrics.SurplusContainers.Inc()
		if err := tm.rm.ReleaseContainer(container.ID); err != nil {
			log.Errorf("Failed to release surplus container %v: %v", container.ID, err)
		}
		return
	}

	owned := protocol.AssignPartitions(taskID, tm.state.TaskCount(), tm.partitions)
	if err := tm.startContainer(taskID, container, owned); err != nil {
		// the cluster will report the container's fate; completion handling
		// takes it from there
		log.Errorf("Failed to start container %v for task %v: %v", container.ID, taskID, err)
	}

	tm.state.bindTask(taskID, container, owned)
	log.Infof("Task %v running in container %v on %v with %v partitions",
		taskID, container.ID, container.Host, len(owned))
}

func (tm *TaskManager) startContainer(taskID protocol.TaskID, container protocol.Container, owned []protocol.SystemStreamPartition) error {
	builder, err := cluster.NewCommandBuilder(tm.cfg.CommandClass())
	if err != nil {
		return err
	}
	builder.SetConfig(tm.cfg).
		SetName(fmt.Sprintf("task-%d", taskID)).
		SetStreamPartitions(owned)

	env := make(map[string]string)
	for k, v := range builder.BuildEnvironment() {
		env[k] = util.ShellEscape(v)
	}
	// worker identity is owned by the task manager, not the builder
	env[cluster.EnvTaskID] = util.ShellEscape(strconv.Itoa(int(taskID)))
	env[cluster.EnvTaskCount] = util.ShellEscape(strconv.Itoa(tm.state.TaskCount()))
	if tm.coordinatorURL != "" {
		env[cluster.EnvCoordinatorURL] = util.ShellEscape(tm.coordinatorURL)
	}

	// sanitized credentials are built exactly once per launch; the AM<->RM
	// token must never reach a worker
	launch := &cluster.LaunchContext{
		Package:     cluster.NewPackageResource(tm.cfg.PackagePath()),
		Environment: env,
		Commands:    []string{builder.BuildCommand()},
		Credentials: tm.creds.Sanitize(),
	}
	return tm.nm.StartContainer(container, launch)
}

func (tm *TaskManager) OnContainerCompleted(status protocol.ContainerStatus) {
	taskID, bound := tm.state.unbindContainer(status.ContainerID)

	switch status.ExitCode {
	case protocol.EXIT_SUCCESS:
		tm.state.completedTasks++
		tm.metrics.CompletedContainers.Inc()
		if bound {
			tm.state.finishTask(taskID)
			tm.failures.RecordSuccess(taskID)
			log.Infof("Task %v completed in container %v", taskID, status.ContainerID)
		} else {
			log.Infof("Unbound container %v completed cleanly", status.ContainerID)
		}
		if tm.state.completedTasks == tm.state.TaskCount() {
			log.Infof("All %v task groups completed, job succeeded", tm.state.TaskCount())
			tm.state.status = protocol.JOB_STATUS_SUCCEEDED
		}

	case protocol.EXIT_RELEASED:
		// the cluster took the container back; not the worker's fault, so the
		// retry budget is never consulted
		tm.state.releasedContainers++
		tm.metrics.ReleasedContainers.Inc()
		tm.OnContainerReleased(status.ContainerID)
		if bound {
			tm.state.returnTask(taskID)
			tm.state.neededContainers++
			tm.requestContainers(1)
		}

	default:
		tm.state.failedContainers++
		tm.metrics.FailedContainers.Inc()
		log.Errorf("Container %v failed with exit %v: %v", status.ContainerID, status.ExitCode, status.Diagnostics)
		if bound {
			tm.state.returnTask(taskID)
			if tm.failures.RecordFailure(taskID) == retry.FATAL {
				log.Errorf("Task %v exhausted its retry budget, failing the job", taskID)
				tm.tooManyFailedContainers = true
				tm.state.status = protocol.JOB_STATUS_FAILED
				return
			}
			tm.state.neededContainers++
			tm.requestContainers(1)
		}
	}
}

func (tm *TaskManager) requestContainers(count int) {
	if tm.tooManyFailedContainers {
		return
	}
	req := cluster.ContainerRequest{
		MemoryMB: tm.cfg.ContainerMemoryMB(),
		CPUCores: tm.cfg.ContainerCPUCores(),
		Priority: 0,
	}
	for i := 0; i < count; i++ {
		if err := tm.rm.RequestContainer(req); err != nil {
			log.Errorf("Container request failed: %v", err)
			continue
		}
		tm.metrics.ContainerRequests.Inc()
	}
}

// OnContainerReleased is informational only; the completion path already
// covers all state changes for a released container.
func (tm *TaskManager) OnContainerReleased(containerID string) {
	log.Infof("Container %v released by the cluster", containerID)
}

func (tm *TaskManager) OnHeartbeat() {}

func (tm *TaskManager) OnReboot() {}

func (tm *TaskManager) OnShutdown() {
	if err := tm.nm.Stop(); err != nil {
		log.Errorf("Failed to stop node manager client: %v", err)
	}
}

func (tm *TaskManager) ShouldShutdown() bool {
	return tm.state.completedTasks == tm.state.TaskCount() || tm.tooManyFailedContainers
}
