package cluster

import (
	"fmt"
	"strings"

	"github.com/skyportsystems/incubator-samza/config"
	"github.com/skyportsystems/incubator-samza/protocol"
)

// environment variables handed to every worker container. The builder emits
// the name, partition, and log-dir entries; the task manager adds the worker
// identity (task id, task count, coordinator URL) at launch.
const (
	EnvWorkerName       = "STREAM_WORKER_NAME"
	EnvStreamPartitions = "STREAM_PARTITIONS"
	EnvLogDir           = "STREAM_LOG_DIR"
	EnvTaskID           = "STREAM_TASK_ID"
	EnvTaskCount        = "STREAM_TASK_COUNT"
	EnvCoordinatorURL   = "STREAM_COORDINATOR_URL"
)

// containerLogDir is the node manager's per-container log directory,
// substituted by the runtime at launch.
const containerLogDir = "<LOG_DIR>"

// CommandBuilder assembles the command line and environment for one worker.
// Implementations are selected by the task.command.class config key; the
// default builds a shell command running the job's entry point.
type CommandBuilder interface {
	SetConfig(cfg config.Config) CommandBuilder
	SetName(name string) CommandBuilder
	SetStreamPartitions(partitions []protocol.SystemStreamPartition) CommandBuilder
	BuildCommand() string
	BuildEnvironment() map[string]string
}

// NewCommandBuilder resolves a builder by class name. The empty string picks
// the built-in shell builder.
func NewCommandBuilder(class string) (CommandBuilder, error) {
	switch class {
	case "", "shell":
		return &ShellCommandBuilder{}, nil
	default:
		return nil, fmt.Errorf("unknown command builder class %q", class)
	}
}

// ShellCommandBuilder launches the entry point from the localized package,
// with stdout/stderr redirected into the container's log directory.
type ShellCommandBuilder struct {
	cfg        config.Config
	name       string
	partitions []protocol.SystemStreamPartition
}

func (b *ShellCommandBuilder) SetConfig(cfg config.Config) CommandBuilder {
	b.cfg = cfg
	return b
}

func (b *ShellCommandBuilder) SetName(name string) CommandBuilder {
	b.name = name
	return b
}

func (b *ShellCommandBuilder) SetStreamPartitions(partitions []protocol.SystemStreamPartition) CommandBuilder {
	b.partitions = partitions
	return b
}

func (b *ShellCommandBuilder) BuildCommand() string {
	return fmt.Sprintf("exec %s 1>%s/stdout 2>%s/stderr",
		b.cfg.TaskExecute(), containerLogDir, containerLogDir)
}

func (b *ShellCommandBuilder) BuildEnvironment() map[string]string {
	return map[string]string{
		EnvWorkerName:       b.name,
		EnvStreamPartitions: EncodePartitions(b.partitions),
		EnvLogDir:           containerLogDir,
	}
}

// EncodePartitions renders a partition set as "system.stream.partition"
// entries joined by commas, the format workers decode at startup.
func EncodePartitions(partitions []protocol.SystemStreamPartition) string {
	parts := make([]string, len(partitions))
	for i, p := range partitions {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}
