package grab

import (
	"context"
	"crypto/tls"
	"fmt"
	"github.com/cavaliergopher/grab/v3"
	"github.com/google/uuid"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

type task struct {
	resp    *grab.Response
	cancel  context.CancelFunc
	removed atomic.Bool
}

// Grab downloads in-process. It needs no external daemon and serves as the
// fallback when aria2 is not wanted.
type Grab struct {
	client *grab.Client
	dir    string
	tasks  *xsync.MapOf[string, *task]
	logger zerolog.Logger
}

var _ downloader.Daemon = (*Grab)(nil)

func GetGrabClient() *grab.Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{},
		Proxy:           http.ProxyFromEnvironment,
	}
	return &grab.Client{
		UserAgent: "magnetdl",
		HTTPClient: &http.Client{
			Transport: tr,
		},
	}
}

func New(dir string) *Grab {
	return &Grab{
		client: GetGrabClient(),
		dir:    dir,
		tasks:  xsync.NewMapOf[string, *task](),
		logger: logger.New("grab"),
	}
}

func (g *Grab) Name() string {
	return "grab"
}

// EnsureRunning only makes sure the download folder exists.
func (g *Grab) EnsureRunning(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("creating download folder: %w", err)
	}
	return nil
}

func newGID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (g *Grab) AddTask(ctx context.Context, uri string, opts downloader.Options) (string, error) {
	dir := g.dir
	if opts.Dir != "" {
		dir = opts.Dir
	}
	dst := dir
	if opts.Out != "" {
		dst = filepath.Join(dir, opts.Out)
	}
	req, err := grab.NewRequest(dst, uri)
	if err != nil {
		return "", err
	}
	// The transfer belongs to the task, not to the caller's context.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req = req.WithContext(taskCtx)

	resp := g.client.Do(req)
	gid := newGID()
	g.tasks.Store(gid, &task{resp: resp, cancel: cancel})
	g.logger.Debug().Msgf("Task %s: %s -> %s", gid, uri, resp.Filename)
	return gid, nil
}

func (g *Grab) GetStatus(ctx context.Context, gid string) (downloader.TaskStatus, error) {
	t, ok := g.tasks.Load(gid)
	if !ok {
		return downloader.TaskStatus{}, fmt.Errorf("%w: %s", downloader.ErrUnknownTask, gid)
	}
	resp := t.resp
	status := downloader.TaskStatus{
		GID:             gid,
		Status:          downloader.StatusActive,
		TotalLength:     max(resp.Size(), 0),
		CompletedLength: resp.BytesComplete(),
		DownloadSpeed:   int64(resp.BytesPerSecond()),
		Connections:     1,
	}
	switch {
	case t.removed.Load():
		status.Status = downloader.StatusRemoved
	case resp.IsComplete():
		// Err only blocks until completion, which has already happened here.
		if err := resp.Err(); err != nil {
			status.Status = downloader.StatusError
			status.ErrorMessage = err.Error()
		} else {
			status.Status = downloader.StatusComplete
			if status.TotalLength == 0 {
				status.TotalLength = status.CompletedLength
			}
		}
	}
	return status, nil
}

func (g *Grab) RemoveTask(ctx context.Context, gid string) bool {
	t, ok := g.tasks.Load(gid)
	if !ok {
		g.logger.Warn().Msgf("Failed to remove task %s: unknown task", gid)
		return false
	}
	if t.removed.CompareAndSwap(false, true) {
		t.cancel()
	}
	return true
}
