package progress

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	chunks := Chunks(items, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2, 3}, chunks[0])
	assert.Equal(t, []int{4, 5, 6}, chunks[1])
	assert.Equal(t, []int{7}, chunks[2])
	assert.Equal(t, 3, ChunkCount(len(items), 3))

	assert.Equal(t, [][]int{items}, Chunks(items, 7))
	assert.Equal(t, [][]int{items}, Chunks(items, 100))
	assert.Equal(t, [][]int{items}, Chunks(items, 0))
	assert.Nil(t, Chunks([]int{}, 3))
	assert.Equal(t, 0, ChunkCount(0, 3))
}

func TestChunks_AppendDoesNotClobberNeighbour(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Chunks(items, 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, []int{3, 4}, chunks[1])
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 30*time.Second, Remaining(10*time.Second, 1, 4))
	assert.Equal(t, 10*time.Second, Remaining(30*time.Second, 3, 4))
	assert.Zero(t, Remaining(40*time.Second, 4, 4))
	assert.Zero(t, Remaining(40*time.Second, 0, 4))
}

func TestTracker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 4)
	assert.Equal(t, 4, tr.Total())

	clock.Advance(2 * time.Minute)
	done, left := tr.Step()
	assert.Equal(t, 1, done)
	assert.Equal(t, 6*time.Minute, left)

	clock.Advance(2 * time.Minute)
	done, left = tr.Step()
	assert.Equal(t, 2, done)
	assert.Equal(t, 4*time.Minute, left)

	clock.Advance(4 * time.Minute)
	tr.Step()
	done, left = tr.Step()
	assert.Equal(t, 4, done)
	assert.Zero(t, left)
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "less than a minute"},
		{-time.Second, "less than a minute"},
		{59 * time.Second, "less than a minute"},
		{90 * time.Second, "1 minute"},
		{12*time.Minute + 30*time.Second, "12 minutes"},
		{90 * time.Minute, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{30 * time.Hour, "1 day"},
		{75 * time.Hour, "3 days"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDuration(tc.in), tc.in.String())
	}
}
