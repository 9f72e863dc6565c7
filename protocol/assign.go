package protocol

import "sort"

// AssignPartitions computes the partition subset owned by one task group.
// Partitions are sorted by (system, stream, partition) and dealt round-robin,
// so task k owns every partition whose sorted index is congruent to k modulo
// taskCount. Deterministic and stable under reordering of the input.
func AssignPartitions(taskID TaskID, taskCount int, all []SystemStreamPartition) []SystemStreamPartition {
	if taskCount <= 0 {
		return nil
	}

	sorted := make(SSPList, len(all))
	copy(sorted, all)
	sort.Sort(sorted)

	owned := make([]SystemStreamPartition, 0)
	for i := int(taskID); i < len(sorted); i += taskCount {
		owned = append(owned, sorted[i])
	}
	return owned
}
