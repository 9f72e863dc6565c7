package protocol

import (
	"encoding/json"
	"fmt"
)

type TaskID int
type JobStatus int32
type ExitCode int32

const (
	JOB_STATUS_UNDEFINED = JobStatus(0)
	JOB_STATUS_SUCCEEDED = JobStatus(1)
	JOB_STATUS_FAILED    = JobStatus(2)
)

const (
	EXIT_SUCCESS = ExitCode(0)
	// the cluster released or lost the container (preemption, node failure).
	// not a worker crash, so it never counts against the retry budget.
	EXIT_RELEASED = ExitCode(-100)
)

// SystemStreamPartition identifies one partition of a named input stream.
type SystemStreamPartition struct {
	System    string `json:"system"`
	Stream    string `json:"stream"`
	Partition int32  `json:"partition"`
}

// Resource is a memory/cpu capability, either requested or granted.
type Resource struct {
	MemoryMB int `json:"mem"`
	CPUCores int `json:"cpu"`
}

// Container is an execution slot granted by the resource manager. The core
// treats the ID as opaque except for equality and logging.
type Container struct {
	ID       string   `json:"id"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Resource Resource `json:"resource"`
}

// ContainerStatus is delivered by the resource manager when a container exits.
type ContainerStatus struct {
	ContainerID string   `json:"id"`
	ExitCode    ExitCode `json:"exit"`
	Diagnostics string   `json:"diag,omitempty"`
}

type SSPList []SystemStreamPartition

func ToBytes(p interface{}) ([]byte, error) {
	return json.Marshal(p)
}

func ToContainer(bytes []byte) (*Container, error) {
	var c Container
	err := json.Unmarshal(bytes, &c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func ToContainerStatus(bytes []byte) (*ContainerStatus, error) {
	var s ContainerStatus
	err := json.Unmarshal(bytes, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r Resource) Fits(required Resource) bool {
	return r.MemoryMB >= required.MemoryMB && r.CPUCores >= required.CPUCores
}

func (r Resource) String() string {
	return fmt.Sprintf("mem=%dMB,cpu=%d", r.MemoryMB, r.CPUCores)
}

func (s SystemStreamPartition) String() string {
	return fmt.Sprintf("%s.%s.%d", s.System, s.Stream, s.Partition)
}

func (c Container) String() string {
	if bytes, err := json.Marshal(c); err == nil {
		return string(bytes)
	}
	return fmt.Sprintf("container=%v,host=%v:%v", c.ID, c.Host, c.Port)
}

func (s ContainerStatus) String() string {
	return fmt.Sprintf("container=%v,exit=%d,diag=%v", s.ContainerID, s.ExitCode, s.Diagnostics)
}

func (s JobStatus) String() string {
	switch s {
	case JOB_STATUS_UNDEFINED:
		return "undefined"
	case JOB_STATUS_SUCCEEDED:
		return "succeeded"
	case JOB_STATUS_FAILED:
		return "failed"
	default:
		return "unknown"
	}
}

func (l SSPList) Len() int {
	return len(l)
}

func (l SSPList) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

func (l SSPList) Less(i, j int) bool {
	if l[i].System != l[j].System {
		return l[i].System < l[j].System
	}
	if l[i].Stream != l[j].Stream {
		return l[i].Stream < l[j].Stream
	}
	return l[i].Partition < l[j].Partition
}
