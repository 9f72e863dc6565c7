package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"gopkg.in/yaml.v3"

	"github.com/skyportsystems/incubator-samza/protocol"
	"github.com/skyportsystems/incubator-samza/util"
)

// canonical configuration keys, read once at startup
const (
	TaskCount              = "task.count"
	TaskInputs             = "task.inputs"
	TaskExecute            = "task.execute"
	TaskCommandClass       = "task.command.class"
	ContainerMemoryMB      = "yarn.container.memory.mb"
	ContainerCPUCores      = "yarn.container.cpu.cores"
	ContainerRetryCount    = "yarn.container.retry.count"
	ContainerRetryWindowMS = "yarn.container.retry.window.ms"
	PackagePath            = "yarn.package.path"
	AMHeartbeatMS          = "yarn.am.heartbeat.ms"
	AMShutdownTimeoutMS    = "yarn.am.shutdown.timeout.ms"
	AMHTTPPort             = "yarn.am.http.port"
	LocalSlots             = "yarn.local.slots"
)

const streamPartitionCountFmt = "streams.%s.partition.count"

// Config is a flat map of dotted keys to string values.
type Config map[string]string

// Load reads a YAML file and flattens nested mappings into dotted keys, so
//
//	yarn:
//	  container:
//	    memory:
//	      mb: 2048
//
// becomes yarn.container.memory.mb=2048.
func Load(path string) (Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("config %s: %v", path, err)
	}

	cfg := make(Config)
	flatten("", raw, cfg)
	return cfg, nil
}

func flatten(prefix string, node map[string]interface{}, into Config) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			flatten(key, child, into)
		case nil:
			into[key] = ""
		default:
			into[key] = fmt.Sprintf("%v", child)
		}
	}
}

// LoadEnv overrides config values from the environment. The variable name for
// a key is the key upper-cased with dots replaced by underscores, e.g.
// TASK_COUNT overrides task.count.
func (c Config) LoadEnv() {
	for key := range c {
		if v, ok := os.LookupEnv(envName(key)); ok {
			log.Infof("Override %s from environment", key)
			c[key] = v
		}
	}
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (c Config) Get(key, dflt string) string {
	if v, ok := c[key]; ok && v != "" {
		return v
	}
	return dflt
}

func (c Config) GetInt(key string, dflt int) int {
	v, ok := c[key]
	if !ok || v == "" {
		return dflt
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Errorf("Invalid integer for %s: %q, using default %d", key, v, dflt)
		return dflt
	}
	return n
}

func (c Config) GetInt64(key string, dflt int64) int64 {
	v, ok := c[key]
	if !ok || v == "" {
		return dflt
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Errorf("Invalid integer for %s: %q, using default %d", key, v, dflt)
		return dflt
	}
	return n
}

// typed accessors with the spec defaults

func (c Config) TaskCount() int           { return c.GetInt(TaskCount, 1) }
func (c Config) ContainerMemoryMB() int   { return c.GetInt(ContainerMemoryMB, 1024) }
func (c Config) ContainerCPUCores() int   { return c.GetInt(ContainerCPUCores, 1) }
func (c Config) RetryCount() int          { return c.GetInt(ContainerRetryCount, 8) }
func (c Config) RetryWindowMS() int64     { return c.GetInt64(ContainerRetryWindowMS, 300000) }
func (c Config) PackagePath() string      { return c.Get(PackagePath, "") }
func (c Config) CommandClass() string     { return c.Get(TaskCommandClass, "") }
func (c Config) TaskExecute() string      { return c.Get(TaskExecute, "bin/run-worker.sh") }
func (c Config) HeartbeatMS() int64       { return c.GetInt64(AMHeartbeatMS, 1000) }
func (c Config) ShutdownTimeoutMS() int64 { return c.GetInt64(AMShutdownTimeoutMS, 0) }
func (c Config) HTTPPort() int            { return c.GetInt(AMHTTPPort, 0) }
func (c Config) ContainerResource() protocol.Resource {
	return protocol.Resource{MemoryMB: c.ContainerMemoryMB(), CPUCores: c.ContainerCPUCores()}
}

// InputPartitions expands task.inputs ("system.stream,system.stream,...")
// into the full partition set, using streams.<stream>.partition.count
// (default 1) for each input.
func (c Config) InputPartitions() ([]protocol.SystemStreamPartition, error) {
	inputs := c.Get(TaskInputs, "")
	if inputs == "" {
		return nil, fmt.Errorf("missing required config %s", TaskInputs)
	}

	partitions := make([]protocol.SystemStreamPartition, 0)
	for _, input := range strings.Split(inputs, ",") {
		input = strings.TrimSpace(input)
		dot := strings.Index(input, ".")
		if dot <= 0 || dot == len(input)-1 {
			return nil, fmt.Errorf("invalid %s entry %q, want system.stream", TaskInputs, input)
		}
		system, stream := input[:dot], input[dot+1:]
		count := c.GetInt(fmt.Sprintf(streamPartitionCountFmt, stream), 1)
		for p := 0; p < count; p++ {
			partitions = append(partitions, protocol.SystemStreamPartition{
				System:    system,
				Stream:    stream,
				Partition: int32(p),
			})
		}
	}
	return partitions, nil
}

// Validate fails fast on configuration the app master cannot start with.
// Called before any resource-manager registration.
func (c Config) Validate() error {
	return util.Cascade(
		c.validatePackage(),
		c.validateTasks(),
		c.validateResource(),
		c.validateInputs(),
	)
}

func (c Config) validatePackage() error {
	if c.PackagePath() == "" {
		return fmt.Errorf("missing required config %s", PackagePath)
	}
	return nil
}

func (c Config) validateTasks() error {
	if c.TaskCount() < 1 {
		return fmt.Errorf("%s must be >= 1, got %d", TaskCount, c.TaskCount())
	}
	return nil
}

func (c Config) validateResource() error {
	if c.ContainerMemoryMB() < 1 || c.ContainerCPUCores() < 1 {
		return fmt.Errorf("container resource must be positive, got %v", c.ContainerResource())
	}
	return nil
}

func (c Config) validateInputs() error {
	_, err := c.InputPartitions()
	return err
}
