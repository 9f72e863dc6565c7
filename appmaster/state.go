package appmaster

import (
	"sort"
	"sync/atomic"

	"github.com/skyportsystems/incubator-samza/protocol"
)

// State is the in-memory source of truth for the job: which task groups are
// waiting, running, or finished, plus the container bookkeeping counters.
// All mutation happens on the event-dispatcher goroutine; other goroutines
// read only the published snapshot.
type State struct {
	taskCount int

	unclaimed      map[protocol.TaskID]bool
	running        map[protocol.TaskID]protocol.Container
	containerTask  map[string]protocol.TaskID
	finished       map[protocol.TaskID]bool
	taskPartitions map[protocol.TaskID][]protocol.SystemStreamPartition

	neededContainers   int
	completedTasks     int
	failedContainers   int
	releasedContainers int
	status             protocol.JobStatus

	snapshot atomic.Value
}

func NewState(taskCount int) *State {
	s := &State{
		taskCount:      taskCount,
		unclaimed:      make(map[protocol.TaskID]bool),
		running:        make(map[protocol.TaskID]protocol.Container),
		containerTask:  make(map[string]protocol.TaskID),
		finished:       make(map[protocol.TaskID]bool),
		taskPartitions: make(map[protocol.TaskID][]protocol.SystemStreamPartition),
		status:         protocol.JOB_STATUS_UNDEFINED,
	}
	s.PublishSnapshot()
	return s
}

func (s *State) TaskCount() int {
	return s.taskCount
}

func (s *State) Status() protocol.JobStatus {
	return s.status
}

// resetTasks marks every task group unclaimed and sets the outstanding
// request count to match. Called once from the task manager's init.
func (s *State) resetTasks() {
	for t := 0; t < s.taskCount; t++ {
		s.unclaimed[protocol.TaskID(t)] = true
	}
	s.neededContainers = s.taskCount
}

// smallestUnclaimed picks the lowest waiting task id, for deterministic
// task-to-container binding.
func (s *State) smallestUnclaimed() (protocol.TaskID, bool) {
	found := false
	var min protocol.TaskID
	for t := range s.unclaimed {
		if !found || t < min {
			found = true
			min = t
		}
	}
	return min, found
}

// bindTask moves a task from unclaimed to running in the given container.
func (s *State) bindTask(taskID protocol.TaskID, container protocol.Container, partitions []protocol.SystemStreamPartition) {
	delete(s.unclaimed, taskID)
	s.running[taskID] = container
	s.containerTask[container.ID] = taskID
	s.taskPartitions[taskID] = partitions
	s.neededContainers--
}

// unbindContainer removes any task binding for a completed container.
// Reports the task id and whether one was bound.
func (s *State) unbindContainer(containerID string) (protocol.TaskID, bool) {
	taskID, ok := s.containerTask[containerID]
	if !ok {
		return 0, false
	}
	delete(s.containerTask, containerID)
	delete(s.running, taskID)
	delete(s.taskPartitions, taskID)
	return taskID, true
}

// returnTask puts a task back in the unclaimed set after its container went
// away.
func (s *State) returnTask(taskID protocol.TaskID) {
	s.unclaimed[taskID] = true
}

func (s *State) finishTask(taskID protocol.TaskID) {
	s.finished[taskID] = true
}

// TaskSnapshot describes one running task group for the status surface.
type TaskSnapshot struct {
	TaskID      int      `json:"task"`
	ContainerID string   `json:"container"`
	Host        string   `json:"host"`
	Partitions  []string `json:"partitions"`
}

// Snapshot is an immutable copy of the job state, safe to serve from any
// goroutine.
type Snapshot struct {
	TaskCount          int            `json:"task_count"`
	UnclaimedTasks     []int          `json:"unclaimed_tasks"`
	RunningTasks       []TaskSnapshot `json:"running_tasks"`
	FinishedTasks      []int          `json:"finished_tasks"`
	NeededContainers   int            `json:"needed_containers"`
	CompletedTasks     int            `json:"completed_tasks"`
	FailedContainers   int            `json:"failed_containers"`
	ReleasedContainers int            `json:"released_containers"`
	Status             string         `json:"status"`
}

// PublishSnapshot stores a fresh immutable snapshot for concurrent readers.
// Called by the event loop after every dispatched event.
func (s *State) PublishSnapshot() {
	snap := Snapshot{
		TaskCount:          s.taskCount,
		UnclaimedTasks:     sortedTaskIDs(s.unclaimed),
		FinishedTasks:      sortedTaskIDs(s.finished),
		NeededContainers:   s.neededContainers,
		CompletedTasks:     s.completedTasks,
		FailedContainers:   s.failedContainers,
		ReleasedContainers: s.releasedContainers,
		Status:             s.status.String(),
	}

	snap.RunningTasks = make([]TaskSnapshot, 0, len(s.running))
	for taskID, container := range s.running {
		partitions := make([]string, 0, len(s.taskPartitions[taskID]))
		for _, p := range s.taskPartitions[taskID] {
			partitions = append(partitions, p.String())
		}
		snap.RunningTasks = append(snap.RunningTasks, TaskSnapshot{
			TaskID:      int(taskID),
			ContainerID: container.ID,
			Host:        container.Host,
			Partitions:  partitions,
		})
	}
	sort.Slice(snap.RunningTasks, func(i, j int) bool {
		return snap.RunningTasks[i].TaskID < snap.RunningTasks[j].TaskID
	})

	s.snapshot.Store(snap)
}

// LatestSnapshot returns the most recently published snapshot. Safe from any
// goroutine.
func (s *State) LatestSnapshot() Snapshot {
	return s.snapshot.Load().(Snapshot)
}

func sortedTaskIDs(set map[protocol.TaskID]bool) []int {
	ids := make([]int, 0, len(set))
	for t := range set {
		ids = append(ids, int(t))
	}
	sort.Ints(ids)
	return ids
}
