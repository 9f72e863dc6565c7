package appmaster

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skyportsystems/incubator-samza/protocol"
)

func TestInitialSnapshot(t *testing.T) {
	state := NewState(2)
	snap := state.LatestSnapshot()

	assert.Equal(t, 2, snap.TaskCount)
	assert.Empty(t, snap.UnclaimedTasks)
	assert.Empty(t, snap.RunningTasks)
	assert.Equal(t, "undefined", snap.Status)
}

func TestSnapshotReflectsBindings(t *testing.T) {
	state := NewState(2)
	state.resetTasks()

	partitions := []protocol.SystemStreamPartition{
		{System: "kafka", Stream: "pageviews", Partition: 0},
	}
	state.bindTask(0, protocol.Container{ID: "c-0", Host: "node-3"}, partitions)
	state.PublishSnapshot()

	snap := state.LatestSnapshot()
	assert.Equal(t, []int{1}, snap.UnclaimedTasks)
	assert.Equal(t, 1, snap.NeededContainers)
	assert.Len(t, snap.RunningTasks, 1)
	assert.Equal(t, "c-0", snap.RunningTasks[0].ContainerID)
	assert.Equal(t, "node-3", snap.RunningTasks[0].Host)
	assert.Equal(t, []string{"kafka.pageviews.0"}, snap.RunningTasks[0].Partitions)
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	state := NewState(1)
	state.resetTasks()
	state.PublishSnapshot()
	before := state.LatestSnapshot()

	state.bindTask(0, protocol.Container{ID: "c-0"}, nil)
	state.PublishSnapshot()

	// the earlier snapshot still shows the earlier state
	assert.Equal(t, []int{0}, before.UnclaimedTasks)
	assert.Empty(t, state.LatestSnapshot().UnclaimedTasks)
}

func TestSnapshotSerializesToJSON(t *testing.T) {
	state := NewState(1)
	state.resetTasks()
	state.PublishSnapshot()

	bytes, err := json.Marshal(state.LatestSnapshot())
	assert.Nil(t, err)
	assert.Contains(t, string(bytes), `"task_count":1`)
	assert.Contains(t, string(bytes), `"status":"undefined"`)
}

func TestUnbindUnknownContainer(t *testing.T) {
	state := NewState(1)
	_, bound := state.unbindContainer("ghost")
	assert.False(t, bound)
}
