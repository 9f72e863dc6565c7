package appmaster

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/skyportsystems/incubator-samza/cluster"
	"github.com/skyportsystems/incubator-samza/protocol"
)

// Lifecycle registers the app master with the resource manager, validates
// that the cluster can grant the capability the job needs, and unregisters
// with the final status at shutdown. It is registered before the task
// manager so a capability rejection prevents any container request.
type Lifecycle struct {
	state       *State
	rm          cluster.ResourceManagerClient
	host        string
	port        int
	trackingURL string
	required    protocol.Resource

	shutdown bool
}

func NewLifecycle(state *State, rm cluster.ResourceManagerClient, host string, port int, trackingURL string, required protocol.Resource) *Lifecycle {
	return &Lifecycle{
		state:       state,
		rm:          rm,
		host:        host,
		port:        port,
		trackingURL: trackingURL,
		required:    required,
	}
}

func (l *Lifecycle) OnInit() {
	max, err := l.rm.Register(l.host, l.port, l.trackingURL)
	if err != nil {
		log.Errorf("Failed to register with the resource manager: %v", err)
		l.fail()
		return
	}
	log.Infof("Registered app master %v:%v, cluster max capability %v", l.host, l.port, max)

	if !max.Fits(l.required) {
		log.Errorf("Cluster max capability %v cannot satisfy required %v", max, l.required)
		l.fail()
	}
}

func (l *Lifecycle) OnShutdown() {
	message := fmt.Sprintf("job finished with status %v", l.state.Status())
	if err := l.rm.Unregister(l.state.Status(), message); err != nil {
		log.Errorf("Failed to unregister: %v", err)
	}
}

// OnReboot rejects the resource manager's reboot signal: the app master does
// not support in-place restart, so the job fails and the cluster's
// application retry takes over.
func (l *Lifecycle) OnReboot() {
	log.Errorf("Resource manager requested a reboot; not supported, failing the job")
	l.fail()
}

func (l *Lifecycle) fail() {
	l.state.status = protocol.JOB_STATUS_FAILED
	l.shutdown = true
}

func (l *Lifecycle) OnContainerAllocated(container protocol.Container) {}

func (l *Lifecycle) OnContainerCompleted(status protocol.ContainerStatus) {}

func (l *Lifecycle) OnHeartbeat() {}

func (l *Lifecycle) ShouldShutdown() bool {
	return l.shutdown
}
