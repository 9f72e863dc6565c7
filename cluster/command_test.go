package cluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skyportsystems/incubator-samza/config"
	"github.com/skyportsystems/incubator-samza/protocol"
)

func TestNewCommandBuilder(t *testing.T) {
	b, err := NewCommandBuilder("")
	assert.Nil(t, err)
	assert.IsType(t, &ShellCommandBuilder{}, b)

	b, err = NewCommandBuilder("shell")
	assert.Nil(t, err)
	assert.IsType(t, &ShellCommandBuilder{}, b)

	_, err = NewCommandBuilder("com.example.Custom")
	assert.NotNil(t, err)
}

func TestShellCommandBuilder(t *testing.T) {
	cfg := config.Config{config.TaskExecute: "bin/run-worker.sh"}
	partitions := []protocol.SystemStreamPartition{
		{System: "kafka", Stream: "pageviews", Partition: 0},
		{System: "kafka", Stream: "pageviews", Partition: 2},
	}

	b, _ := NewCommandBuilder("")
	b.SetConfig(cfg).SetName("task-0").SetStreamPartitions(partitions)

	cmd := b.BuildCommand()
	assert.True(t, strings.HasPrefix(cmd, "exec bin/run-worker.sh"))
	assert.Contains(t, cmd, "1><LOG_DIR>/stdout")
	assert.Contains(t, cmd, "2><LOG_DIR>/stderr")

	env := b.BuildEnvironment()
	assert.Equal(t, "task-0", env[EnvWorkerName])
	assert.Equal(t, "kafka.pageviews.0,kafka.pageviews.2", env[EnvStreamPartitions])
}

func TestCredentialsSanitize(t *testing.T) {
	creds := &Credentials{Tokens: map[string]string{
		AMRMTokenKind:     "secret-am-rm",
		"HDFS_DELEGATION": "hdfs-token",
	}}

	sanitized := creds.Sanitize()
	_, hasAMRM := sanitized.Tokens[AMRMTokenKind]
	assert.False(t, hasAMRM)
	assert.Equal(t, "hdfs-token", sanitized.Tokens["HDFS_DELEGATION"])

	// the original is untouched
	assert.Equal(t, "secret-am-rm", creds.Tokens[AMRMTokenKind])
}
