// Package progress splits work into fixed-size chunks and estimates the time
// left from the chunks completed so far.
package progress

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
)

// Chunks splits items into consecutive chunks of at most size elements. The
// final chunk may be shorter. A non-positive size yields a single chunk.
func Chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	out := make([][]T, 0, ChunkCount(len(items), size))
	for begin := 0; begin < len(items); begin += size {
		limit := min(begin+size, len(items))
		out = append(out, items[begin:limit:limit])
	}
	return out
}

// ChunkCount is the number of chunks Chunks produces for n items.
func ChunkCount(n, size int) int {
	if n == 0 {
		return 0
	}
	if size <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Remaining extrapolates the time left after completed of total equal-cost
// steps took elapsed: elapsed * (total/completed - 1).
func Remaining(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || completed >= total {
		return 0
	}
	return time.Duration(math.Round(float64(elapsed) * (float64(total)/float64(completed) - 1)))
}

// Tracker measures elapsed time across the chunks of one write pass.
type Tracker struct {
	clock     clockwork.Clock
	start     time.Time
	total     int
	completed int
}

// NewTracker starts timing a pass of total chunks.
func NewTracker(clock clockwork.Clock, total int) *Tracker {
	return &Tracker{clock: clock, start: clock.Now(), total: total}
}

// Step marks one more chunk as done and returns the completed count and the
// estimated time remaining.
func (t *Tracker) Step() (int, time.Duration) {
	t.completed++
	return t.completed, Remaining(t.clock.Since(t.start), t.completed, t.total)
}

// Total is the number of chunks in the pass.
func (t *Tracker) Total() int {
	return t.total
}

const day = 24 * time.Hour

// magnitudes drive humanize.CustomRelTime. Each entry applies to durations
// below D; %d is the duration divided by DivBy.
var magnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "less than a minute", DivBy: 1},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: 1},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour", DivBy: 1},
	{D: day, Format: "%d hours", DivBy: time.Hour},
	{D: 2 * day, Format: "1 day", DivBy: 1},
	{D: math.MaxInt64, Format: "%d days", DivBy: day},
}

// FormatDuration renders d coarsely, e.g. "less than a minute", "12 minutes",
// "3 hours", "2 days".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	var epoch time.Time
	return humanize.CustomRelTime(epoch, epoch.Add(d), "", "", magnitudes)
}
