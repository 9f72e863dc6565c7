// Package cluster defines the contracts the app master core consumes from
// the cluster resource manager and the per-node container runtime, plus the
// launch-context plumbing shared by every implementation.
package cluster

import (
	"os"

	"github.com/skyportsystems/incubator-samza/protocol"
)

type ArchiveType string
type Visibility string

const (
	ARCHIVE_TGZ  = ArchiveType("archive")
	ARCHIVE_FILE = ArchiveType("file")

	VISIBILITY_APPLICATION = Visibility("application")
	VISIBILITY_PUBLIC      = Visibility("public")
)

// AMRMTokenKind names the token used between the app master and the resource
// manager. It must never be shipped to worker containers.
const AMRMTokenKind = "YARN_AM_RM_TOKEN"

// Listener receives asynchronous resource-manager events. Implementations
// must be cheap and non-blocking; callbacks arrive on the client's own
// goroutines.
type Listener interface {
	ContainerAllocated(container protocol.Container)
	ContainerCompleted(status protocol.ContainerStatus)
	Rebooted()
	ShutdownRequested()
}

// ContainerRequest asks the resource manager for one execution slot.
type ContainerRequest struct {
	MemoryMB int
	CPUCores int
	Priority int
}

// ResourceManagerClient is the app master's view of the cluster manager.
// Register returns the maximum capability the cluster will grant. Events are
// delivered to the Listener passed to Start.
type ResourceManagerClient interface {
	Start(listener Listener) error
	Register(host string, port int, trackingURL string) (protocol.Resource, error)
	RequestContainer(req ContainerRequest) error
	ReleaseContainer(containerID string) error
	Unregister(status protocol.JobStatus, message string) error
}

// NodeManagerClient starts containers on the nodes the resource manager
// granted. StartContainer is synchronous.
type NodeManagerClient interface {
	Start() error
	Stop() error
	StartContainer(container protocol.Container, ctx *LaunchContext) error
}

// PackageResource localizes the job's deployable archive into a container.
type PackageResource struct {
	URL         string      `json:"url"`
	SizeBytes   int64       `json:"size"`
	TimestampMS int64       `json:"timestamp"`
	Type        ArchiveType `json:"type"`
	Visibility  Visibility  `json:"visibility"`
}

// NewPackageResource describes the archive at path. Size and timestamp are
// taken from the local filesystem when the path resolves there; remote URLs
// keep zero values and are resolved by the node manager.
func NewPackageResource(path string) PackageResource {
	res := PackageResource{
		URL:        path,
		Type:       ARCHIVE_TGZ,
		Visibility: VISIBILITY_APPLICATION,
	}
	if info, err := os.Stat(path); err == nil {
		res.SizeBytes = info.Size()
		res.TimestampMS = info.ModTime().UnixMilli()
	}
	return res
}

// Credentials is an opaque token blob keyed by token kind.
type Credentials struct {
	Tokens map[string]string
}

// Sanitize returns a copy with the AM<->RM token stripped, suitable for
// shipping to a worker container. The receiver is left untouched.
func (c *Credentials) Sanitize() *Credentials {
	out := &Credentials{Tokens: make(map[string]string, len(c.Tokens))}
	for kind, token := range c.Tokens {
		if kind == AMRMTokenKind {
			continue
		}
		out.Tokens[kind] = token
	}
	return out
}

// LaunchContext carries everything a node manager needs to start a worker.
type LaunchContext struct {
	Package     PackageResource
	Environment map[string]string
	Commands    []string
	Credentials *Credentials
}
