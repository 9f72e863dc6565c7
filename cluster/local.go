package cluster

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/skyportsystems/incubator-samza/protocol"
)

// LocalCluster implements both cluster client contracts in one process:
// container requests are granted on the local host up to a configured slot
// count and workers run as child processes, with exit codes fed back as
// completion events. Requests beyond the slot count queue until a slot
// frees; Tick sweeps the queue and is meant to be driven by the app
// master's heartbeat. It exists so a job can run end to end without a
// cluster. The ResourceManager and NodeManager views share the same state.
type LocalCluster struct {
	mu         sync.Mutex
	listener   Listener
	capability protocol.Resource
	slots      int
	logRoot    string
	granted    map[string]bool
	pending    []ContainerRequest
	procs      map[string]*exec.Cmd
	released   map[string]bool
	stopped    bool
	wg         sync.WaitGroup
}

// NewLocalCluster caps concurrent containers at slots; slots <= 0 means
// unlimited.
func NewLocalCluster(capability protocol.Resource, slots int) *LocalCluster {
	return &LocalCluster{
		capability: capability,
		slots:      slots,
		logRoot:    filepath.Join(os.TempDir(), "local-cluster-logs"),
		granted:    make(map[string]bool),
		procs:      make(map[string]*exec.Cmd),
		released:   make(map[string]bool),
	}
}

func (lc *LocalCluster) ResourceManager() ResourceManagerClient {
	return localRM{lc}
}

func (lc *LocalCluster) NodeManager() NodeManagerClient {
	return localNM{lc}
}

// Tick grants any queued requests that now fit under the slot count. Wired
// to the event loop's heartbeat.
func (lc *LocalCluster) Tick() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.drainPending()
}

// caller must hold mu
func (lc *LocalCluster) hasSlot() bool {
	return lc.slots <= 0 || len(lc.granted) < lc.slots
}

// caller must hold mu
func (lc *LocalCluster) drainPending() {
	for len(lc.pending) > 0 && lc.hasSlot() {
		req := lc.pending[0]
		lc.pending = lc.pending[1:]
		lc.grant(req)
	}
}

// caller must hold mu
func (lc *LocalCluster) grant(req ContainerRequest) {
	container := protocol.Container{
		ID:   uuid.NewString(),
		Host: "localhost",
		Resource: protocol.Resource{
			MemoryMB: req.MemoryMB,
			CPUCores: req.CPUCores,
		},
	}
	lc.granted[container.ID] = true

	// allocations arrive on the client's own goroutine, as a real cluster
	// client would deliver them
	lc.wg.Add(1)
	go func() {
		defer lc.wg.Done()
		lc.mu.Lock()
		listener, stopped := lc.listener, lc.stopped
		lc.mu.Unlock()
		if listener == nil || stopped {
			return
		}
		listener.ContainerAllocated(container)
	}()
}

type localRM struct {
	lc *LocalCluster
}

func (r localRM) Start(listener Listener) error {
	r.lc.mu.Lock()
	defer r.lc.mu.Unlock()
	r.lc.listener = listener
	return nil
}

func (r localRM) Register(host string, port int, trackingURL string) (protocol.Resource, error) {
	log.Infof("Registered local app master %v:%v, tracking %v", host, port, trackingURL)
	return r.lc.capability, nil
}

func (r localRM) RequestContainer(req ContainerRequest) error {
	lc := r.lc
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.hasSlot() {
		lc.pending = append(lc.pending, req)
		log.Infof("No free slot, queueing container request (%v pending)", len(lc.pending))
		return nil
	}
	lc.grant(req)
	return nil
}

func (r localRM) ReleaseContainer(containerID string) error {
	lc := r.lc
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.released[containerID] = true
	if proc := lc.procs[containerID]; proc != nil && proc.Process != nil {
		log.Infof("Killing released container %v", containerID)
		return proc.Process.Kill()
	}
	// released before any worker started; free the slot now
	delete(lc.granted, containerID)
	lc.drainPending()
	return nil
}

func (r localRM) Unregister(status protocol.JobStatus, message string) error {
	log.Infof("Unregistered local app master with status %v: %v", status, message)
	r.lc.mu.Lock()
	r.lc.stopped = true
	r.lc.mu.Unlock()
	return nil
}

type localNM struct {
	lc *LocalCluster
}

func (n localNM) Start() error {
	return os.MkdirAll(n.lc.logRoot, 0755)
}

func (n localNM) Stop() error {
	lc := n.lc
	lc.mu.Lock()
	lc.stopped = true
	for id, proc := range lc.procs {
		if proc.Process != nil {
			log.Infof("Killing container %v on shutdown", id)
			proc.Process.Kill()
		}
	}
	lc.mu.Unlock()
	lc.wg.Wait()
	return nil
}

func (n localNM) StartContainer(container protocol.Container, ctx *LaunchContext) error {
	lc := n.lc
	logDir := filepath.Join(lc.logRoot, container.ID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	command := strings.ReplaceAll(strings.Join(ctx.Commands, " "), containerLogDir, logDir)
	proc := exec.Command("sh", "-c", command)
	proc.Env = os.Environ()
	for k, v := range ctx.Environment {
		proc.Env = append(proc.Env, fmt.Sprintf("%s=%s", k, strings.ReplaceAll(v, containerLogDir, logDir)))
	}

	lc.mu.Lock()
	if lc.stopped {
		lc.mu.Unlock()
		return fmt.Errorf("node manager is stopped")
	}
	if err := proc.Start(); err != nil {
		lc.mu.Unlock()
		return err
	}
	lc.procs[container.ID] = proc
	lc.mu.Unlock()

	log.Infof("Started container %v: %v", container.ID, command)

	lc.wg.Add(1)
	go lc.awaitExit(container.ID, proc)
	return nil
}

func (lc *LocalCluster) awaitExit(containerID string, proc *exec.Cmd) {
	defer lc.wg.Done()
	err := proc.Wait()

	lc.mu.Lock()
	delete(lc.procs, containerID)
	delete(lc.granted, containerID)
	released := lc.released[containerID]
	listener, stopped := lc.listener, lc.stopped
	if !stopped {
		lc.drainPending()
	}
	lc.mu.Unlock()

	exit := protocol.ExitCode(0)
	diag := ""
	if err != nil {
		exit = protocol.ExitCode(1)
		if proc.ProcessState != nil {
			exit = protocol.ExitCode(proc.ProcessState.ExitCode())
		}
		diag = err.Error()
	}
	if released {
		exit = protocol.EXIT_RELEASED
		diag = "released by app master"
	}

	if listener == nil || stopped {
		return
	}
	listener.ContainerCompleted(protocol.ContainerStatus{
		ContainerID: containerID,
		ExitCode:    exit,
		Diagnostics: diag,
	})
}
