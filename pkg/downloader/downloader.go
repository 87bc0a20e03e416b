package downloader

import (
	"context"
	"errors"
)

// Task states as reported by the daemon.
const (
	StatusActive   = "active"
	StatusWaiting  = "waiting"
	StatusPaused   = "paused"
	StatusComplete = "complete"
	StatusError    = "error"
	StatusRemoved  = "removed"
)

var ErrUnknownTask = errors.New("downloader: unknown task")

type TaskStatus struct {
	GID             string `json:"gid"`
	Status          string `json:"status"`
	TotalLength     int64  `json:"total_length"`
	CompletedLength int64  `json:"completed_length"`
	DownloadSpeed   int64  `json:"download_speed"`
	Connections     int    `json:"connections"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// Progress is the completed fraction, 0 while the total size is unknown.
func (s TaskStatus) Progress() float64 {
	if s.TotalLength <= 0 {
		return 0
	}
	return min(float64(s.CompletedLength)/float64(s.TotalLength), 1)
}

// Failed reports whether the task stopped without completing.
func (s TaskStatus) Failed() bool {
	return s.Status == StatusError || s.Status == StatusRemoved
}

type Options struct {
	Dir         string
	Out         string
	Connections int
}

// Daemon fetches URIs in the background and reports per-task progress.
type Daemon interface {
	Name() string
	EnsureRunning(ctx context.Context) error
	AddTask(ctx context.Context, uri string, opts Options) (string, error)
	GetStatus(ctx context.Context, gid string) (TaskStatus, error)
	RemoveTask(ctx context.Context, gid string) bool
}
