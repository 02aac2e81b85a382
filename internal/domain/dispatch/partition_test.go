package dispatch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/domain/model"
)

func recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%d@example.com", i)
	}
	return out
}

func TestPartition_SplitsInOrder(t *testing.T) {
	job := &model.SendJob{ID: "job-1", Recipients: recipients(60), BatchSize: 25}

	batches := Partition(job)
	require.Len(t, batches, 3)

	sizes := []int{len(batches[0].Recipients), len(batches[1].Recipients), len(batches[2].Recipients)}
	assert.Equal(t, []int{25, 25, 10}, sizes)

	var flat []string
	for i, b := range batches {
		assert.Equal(t, i, b.Index)
		assert.Equal(t, "job-1", b.JobID)
		flat = append(flat, b.Recipients...)
	}
	assert.Equal(t, job.Recipients, flat)
}

func TestPartition_BatchCountIsCeil(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
		{100, 10, 10},
		{7, 1, 7},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			job := &model.SendJob{Recipients: recipients(tt.n), BatchSize: tt.size}
			assert.Len(t, Partition(job), tt.want)
			assert.Equal(t, tt.want, BatchCount(tt.n, tt.size))
		})
	}
}

func TestPartition_DefaultsBatchSize(t *testing.T) {
	job := &model.SendJob{Recipients: recipients(30)}
	batches := Partition(job)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Recipients, model.DefaultBatchSize)
}

func TestPartition_DoesNotAliasRecipients(t *testing.T) {
	job := &model.SendJob{Recipients: recipients(3), BatchSize: 2}
	batches := Partition(job)
	batches[0].Recipients[0] = "changed@example.com"
	assert.Equal(t, "user0@example.com", job.Recipients[0])
}

func TestPartition_NilJob(t *testing.T) {
	assert.Nil(t, Partition(nil))
}
