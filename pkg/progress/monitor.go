package progress

import (
	"context"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"io"
	"time"
)

const removeTimeout = 5 * time.Second

// File is the monitor's view of one daemon task.
type File struct {
	GID            string
	Name           string
	Progress       float64
	Completed      bool
	Failed         bool
	TotalBytes     int64
	CompletedBytes int64
	Speed          int64
	Error          string
}

func (f *File) pending() bool {
	return !f.Completed && !f.Failed
}

// Tracker is the part of a download daemon the monitor needs.
type Tracker interface {
	GetStatus(ctx context.Context, gid string) (downloader.TaskStatus, error)
	RemoveTask(ctx context.Context, gid string) bool
}

type Summary struct {
	Completed      []string
	Failed         []string
	Removed        []string
	TotalBytes     int64
	CompletedBytes int64
	Elapsed        time.Duration
}

type Monitor struct {
	tracker             Tracker
	out                 io.Writer
	interactiveInterval time.Duration
	aggregateInterval   time.Duration
	threshold           int
	logger              zerolog.Logger
}

func New(tracker Tracker, cfg config.Monitor, out io.Writer) *Monitor {
	return &Monitor{
		tracker:             tracker,
		out:                 out,
		interactiveInterval: cfg.GetInteractiveInterval(),
		aggregateInterval:   cfg.GetAggregateInterval(),
		threshold:           max(cfg.AggregateThreshold, 1),
		logger:              logger.New("progress"),
	}
}

// Update folds a daemon status into f. Progress never moves backwards and a
// zero total leaves it untouched.
func Update(f *File, status downloader.TaskStatus) {
	if status.TotalLength > 0 {
		f.TotalBytes = status.TotalLength
		f.CompletedBytes = max(f.CompletedBytes, status.CompletedLength)
		f.Progress = max(f.Progress, status.Progress())
	}
	f.Speed = status.DownloadSpeed
	switch {
	case status.Status == downloader.StatusComplete || f.Progress >= 1:
		f.Completed = true
		f.Progress = 1
		f.Speed = 0
	case status.Failed():
		f.Failed = true
		f.Speed = 0
		f.Error = status.ErrorMessage
	}
}

// Done reports whether no task is still expected to finish.
func Done(files []*File) bool {
	for _, f := range files {
		if f.pending() {
			return false
		}
	}
	return true
}

func (m *Monitor) aggregate(files []*File) bool {
	return len(files) > m.threshold
}

func (m *Monitor) interval(files []*File) time.Duration {
	if m.aggregate(files) {
		return m.aggregateInterval
	}
	return m.interactiveInterval
}

// Poll queries every pending task once. A failed query keeps the previous values.
func (m *Monitor) Poll(ctx context.Context, files []*File) {
	for _, f := range files {
		if !f.pending() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		status, err := m.tracker.GetStatus(ctx, f.GID)
		if err != nil {
			m.logger.Debug().Err(err).Msgf("Status query for %s failed", f.Name)
			continue
		}
		wasPending := f.pending()
		Update(f, status)
		if wasPending && f.Failed {
			m.logger.Warn().Msgf("Download of %s failed: %s", f.Name, f.Error)
		}
	}
}

// Run polls until every task has completed or failed. On cancellation the
// pending tasks are removed from the daemon and ctx.Err() is returned.
func (m *Monitor) Run(ctx context.Context, files []*File) (Summary, error) {
	start := time.Now()
	r := newRenderer(m.out, m.aggregate(files))
	ticker := time.NewTicker(m.interval(files))
	defer ticker.Stop()

	for {
		m.Poll(ctx, files)
		if ctx.Err() != nil {
			break
		}
		r.render(files)
		if Done(files) {
			r.finish(files)
			return summarize(files, nil, time.Since(start)), nil
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.finish(files)
	removed := m.removePending(files)
	return summarize(files, removed, time.Since(start)), ctx.Err()
}

func (m *Monitor) removePending(files []*File) []string {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	removed := make([]bool, len(files))
	var g errgroup.Group
	g.SetLimit(8)
	for i, f := range files {
		if !f.pending() {
			continue
		}
		g.Go(func() error {
			removed[i] = m.tracker.RemoveTask(ctx, f.GID)
			return nil
		})
	}
	_ = g.Wait()

	names := make([]string, 0)
	for i, ok := range removed {
		if ok {
			names = append(names, files[i].Name)
		}
	}
	if len(names) > 0 {
		m.logger.Info().Msgf("Removed %d unfinished downloads", len(names))
	}
	return names
}

func summarize(files []*File, removed []string, elapsed time.Duration) Summary {
	s := Summary{Removed: removed, Elapsed: elapsed}
	for _, f := range files {
		s.TotalBytes += f.TotalBytes
		s.CompletedBytes += f.CompletedBytes
		switch {
		case f.Completed:
			s.Completed = append(s.Completed, f.Name)
		case f.Failed:
			s.Failed = append(s.Failed, f.Name)
		}
	}
	return s
}
