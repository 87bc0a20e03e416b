package progress

import (
	"bytes"
	"context"
	"errors"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTracker replays a per-task sequence of statuses; the last one repeats.
type fakeTracker struct {
	mu       sync.Mutex
	statuses map[string][]downloader.TaskStatus
	calls    map[string]int
	removed  []string
	failGet  map[string]bool
}

func newFakeTracker(statuses map[string][]downloader.TaskStatus) *fakeTracker {
	return &fakeTracker{statuses: statuses, calls: map[string]int{}, failGet: map[string]bool{}}
}

func (f *fakeTracker) GetStatus(_ context.Context, gid string) (downloader.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet[gid] {
		return downloader.TaskStatus{}, errors.New("rpc unreachable")
	}
	seq := f.statuses[gid]
	n := f.calls[gid]
	f.calls[gid]++
	return seq[min(n, len(seq)-1)], nil
}

func (f *fakeTracker) RemoveTask(_ context.Context, gid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, gid)
	return true
}

func st(status string, done, total int64) downloader.TaskStatus {
	return downloader.TaskStatus{Status: status, CompletedLength: done, TotalLength: total}
}

func testConfig() config.Monitor {
	return config.Monitor{InteractiveInterval: "1ms", AggregateInterval: "1ms", AggregateThreshold: 10}
}

func files(gids ...string) []*File {
	out := make([]*File, len(gids))
	for i, gid := range gids {
		out[i] = &File{GID: gid, Name: gid + ".mkv"}
	}
	return out
}

func TestPollMixedCompletion(t *testing.T) {
	tracker := newFakeTracker(map[string][]downloader.TaskStatus{
		"a": {st(downloader.StatusActive, 100, 100)},
		"b": {st(downloader.StatusActive, 50, 100)},
		"c": {st(downloader.StatusActive, 100, 100)},
	})
	m := New(tracker, testConfig(), &bytes.Buffer{})
	fs := files("a", "b", "c")

	m.Poll(context.Background(), fs)

	assert.Equal(t, []bool{true, false, true}, []bool{fs[0].Completed, fs[1].Completed, fs[2].Completed})
	assert.Equal(t, 0.5, fs[1].Progress)
	assert.False(t, Done(fs))
}

func TestUpdate(t *testing.T) {
	f := &File{}
	Update(f, st(downloader.StatusActive, 60, 100))
	assert.Equal(t, 0.6, f.Progress)

	Update(f, st(downloader.StatusActive, 40, 100))
	assert.Equal(t, 0.6, f.Progress, "progress must not regress")

	Update(f, st(downloader.StatusActive, 0, 0))
	assert.Equal(t, 0.6, f.Progress, "unknown total leaves progress alone")
	assert.False(t, f.Completed)

	Update(f, st(downloader.StatusComplete, 0, 0))
	assert.True(t, f.Completed)
	assert.Equal(t, 1.0, f.Progress)
}

func TestUpdateFailed(t *testing.T) {
	f := &File{}
	Update(f, downloader.TaskStatus{Status: downloader.StatusError, ErrorMessage: "404"})
	assert.True(t, f.Failed)
	assert.False(t, f.Completed)
	assert.Equal(t, "404", f.Error)
	assert.True(t, Done([]*File{f}))
}

func TestRunUntilComplete(t *testing.T) {
	tracker := newFakeTracker(map[string][]downloader.TaskStatus{
		"a": {st(downloader.StatusActive, 0, 0), st(downloader.StatusActive, 500, 1000), st(downloader.StatusComplete, 1000, 1000)},
		"b": {st(downloader.StatusWaiting, 0, 0), st(downloader.StatusActive, 2000, 2000)},
	})
	var out bytes.Buffer
	m := New(tracker, testConfig(), &out)

	summary, err := m.Run(context.Background(), files("a", "b"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.mkv", "b.mkv"}, summary.Completed)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, tracker.removed)
	assert.Equal(t, int64(3000), summary.TotalBytes)
	assert.Contains(t, out.String(), "2/2 files complete")
}

func TestRunExcludesFailedTasks(t *testing.T) {
	tracker := newFakeTracker(map[string][]downloader.TaskStatus{
		"a": {st(downloader.StatusComplete, 10, 10)},
		"b": {{Status: downloader.StatusError, ErrorMessage: "resource not found"}},
	})
	m := New(tracker, testConfig(), &bytes.Buffer{})

	summary, err := m.Run(context.Background(), files("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mkv"}, summary.Completed)
	assert.Equal(t, []string{"b.mkv"}, summary.Failed)
}

func TestRunToleratesQueryErrors(t *testing.T) {
	tracker := newFakeTracker(map[string][]downloader.TaskStatus{
		"a": {st(downloader.StatusComplete, 10, 10)},
	})
	tracker.failGet["a"] = true
	m := New(tracker, testConfig(), &bytes.Buffer{})
	fs := files("a")

	m.Poll(context.Background(), fs)
	assert.False(t, fs[0].Completed)

	tracker.mu.Lock()
	tracker.failGet["a"] = false
	tracker.mu.Unlock()
	m.Poll(context.Background(), fs)
	assert.True(t, fs[0].Completed)
}

func TestRunCancelledRemovesIncomplete(t *testing.T) {
	tracker := newFakeTracker(map[string][]downloader.TaskStatus{
		"a": {st(downloader.StatusComplete, 10, 10)},
		"b": {st(downloader.StatusActive, 5, 10)},
		"c": {st(downloader.StatusActive, 1, 10)},
	})
	m := New(tracker, testConfig(), &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary, err := m.Run(ctx, files("a", "b", "c"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ElementsMatch(t, []string{"b", "c"}, tracker.removed)
	assert.ElementsMatch(t, []string{"b.mkv", "c.mkv"}, summary.Removed)
	assert.Equal(t, []string{"a.mkv"}, summary.Completed)
}

func TestIntervalByTaskCount(t *testing.T) {
	m := New(newFakeTracker(nil), config.Monitor{AggregateThreshold: 10}, &bytes.Buffer{})
	assert.Equal(t, 200*time.Millisecond, m.interval(make([]*File, 10)))
	assert.Equal(t, 2*time.Second, m.interval(make([]*File, 11)))
}

func TestAggregateLine(t *testing.T) {
	fs := []*File{
		{Name: "a", TotalBytes: 1000000, CompletedBytes: 1000000, Completed: true},
		{Name: "b", TotalBytes: 1000000, CompletedBytes: 500000, Speed: 2000},
		{Name: "c", Failed: true},
	}
	line := AggregateLine(fs)
	assert.Equal(t, "1/3 files complete, 1.5 MB / 2.0 MB (75.0%), 2.0 kB/s, 1 failed", line)
}

func TestFileLine(t *testing.T) {
	line := fileLine(&File{Name: "episode.mkv", Progress: 0.5, TotalBytes: 2000000, CompletedBytes: 1000000})
	assert.True(t, strings.HasPrefix(line, "episode.mkv"))
	assert.Contains(t, line, "["+strings.Repeat("#", 15)+strings.Repeat("-", 15)+"]")
	assert.Contains(t, line, " 50.0%")
	assert.Contains(t, line, "1.0 MB / 2.0 MB")

	long := fileLine(&File{Name: strings.Repeat("x", 60)})
	assert.Contains(t, long, strings.Repeat("x", 37)+"...")
	assert.Contains(t, long, "?")
}
