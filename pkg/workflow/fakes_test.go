package workflow

import (
	"context"
	"errors"
	"fmt"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"sync"
)

type fakeCache struct {
	mu          sync.Mutex
	torrent     *types.Torrent
	cached      *types.Torrent
	submitErr   error
	waitErr     error
	wait        func(ctx context.Context) error
	failLinks   map[string]bool
	submitted   int
	unrestricts int
	deleted     []string
}

func (f *fakeCache) GetName() string { return "fake" }

func (f *fakeCache) SubmitMagnet(ctx context.Context, magnet string) (*types.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	t := *f.torrent
	return &t, nil
}

func (f *fakeCache) GetTorrent(ctx context.Context, id string) (*types.Torrent, error) {
	if f.cached != nil {
		t := *f.cached
		return &t, nil
	}
	t := *f.torrent
	return &t, nil
}

func (f *fakeCache) WaitForStatus(ctx context.Context, id string, desired string, sizeHint int64) error {
	if f.wait != nil {
		return f.wait(ctx)
	}
	return f.waitErr
}

func (f *fakeCache) UnrestrictLinks(ctx context.Context, links []types.ResolvedLink) ([]types.ResolvedLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unrestricts++
	out := make([]types.ResolvedLink, 0, len(links))
	for _, l := range links {
		if f.failLinks[l.Link] {
			continue
		}
		l.URL = "https://cdn.example/" + l.FileName
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeCache) DeleteTorrent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeDaemon completes every task on its first status query unless told otherwise.
type fakeDaemon struct {
	mu        sync.Mutex
	ensureErr error
	failAddAt int
	added     []downloader.Options
	removed   []string
	status    func(gid string) downloader.TaskStatus
}

func (f *fakeDaemon) Name() string { return "fake" }

func (f *fakeDaemon) EnsureRunning(ctx context.Context) error {
	return f.ensureErr
}

func (f *fakeDaemon) AddTask(ctx context.Context, uri string, opts downloader.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAddAt > 0 && len(f.added)+1 == f.failAddAt {
		return "", errors.New("rpc: connection refused")
	}
	f.added = append(f.added, opts)
	return fmt.Sprintf("gid%d", len(f.added)), nil
}

func (f *fakeDaemon) GetStatus(ctx context.Context, gid string) (downloader.TaskStatus, error) {
	if f.status != nil {
		return f.status(gid), nil
	}
	return downloader.TaskStatus{GID: gid, Status: downloader.StatusComplete, TotalLength: 100, CompletedLength: 100}, nil
}

func (f *fakeDaemon) RemoveTask(ctx context.Context, gid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, gid)
	return true
}

type fakeLinks struct {
	written   [][]string
	published []string
}

func (f *fakeLinks) Write(name string, urls []string) (string, error) {
	f.written = append(f.written, urls)
	return "/tmp/" + name + ".txt", nil
}

func (f *fakeLinks) Publish(ctx context.Context, path string) error {
	f.published = append(f.published, path)
	return nil
}
