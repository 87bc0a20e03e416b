package magnetdl

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"github.com/magnetdl/magnetdl/pkg/downloader/aria2"
	"github.com/magnetdl/magnetdl/pkg/downloader/grab"
	"github.com/magnetdl/magnetdl/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cachedTorrent is a caching service that already holds the torrent and
// resolves every link to a file on base.
type cachedTorrent struct {
	base    string
	torrent types.Torrent
}

func (c *cachedTorrent) GetName() string { return "cached" }

func (c *cachedTorrent) SubmitMagnet(ctx context.Context, magnet string) (*types.Torrent, error) {
	t := c.torrent
	return &t, nil
}

func (c *cachedTorrent) GetTorrent(ctx context.Context, id string) (*types.Torrent, error) {
	t := c.torrent
	return &t, nil
}

func (c *cachedTorrent) WaitForStatus(ctx context.Context, id, desired string, sizeHint int64) error {
	return nil
}

func (c *cachedTorrent) UnrestrictLinks(ctx context.Context, links []types.ResolvedLink) ([]types.ResolvedLink, error) {
	out := make([]types.ResolvedLink, len(links))
	for i, l := range links {
		l.URL = c.base + "/files/" + l.FileName
		out[i] = l
	}
	return out, nil
}

func (c *cachedTorrent) DeleteTorrent(ctx context.Context, id string) error {
	return nil
}

func TestStartDownloadsWithGrab(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/files/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, r.URL.Path, time.Now(), strings.NewReader("content of "+r.URL.Path))
	})))
	defer srv.Close()

	root := t.TempDir()
	cfg := &config.Config{
		Downloader: config.DownloaderGrab,
		Aria2:      config.Aria2{DownloadDir: filepath.Join(root, "downloads")},
		Monitor:    config.Monitor{InteractiveInterval: "5ms", AggregateInterval: "5ms", AggregateThreshold: 10},
		Links:      config.Links{TempDir: filepath.Join(root, "tmp")},
	}
	cache := &cachedTorrent{base: srv.URL, torrent: types.Torrent{
		Id:    "T1",
		Name:  "Show S01",
		Files: []string{"/Show/e01.mkv", "/Show/e02.mkv"},
		Links: []string{"https://rd/d/1", "https://rd/d/2"},
	}}

	var stdout bytes.Buffer
	res := StartWith(context.Background(), cfg, cache, Request{
		Magnet:     "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		PrintLinks: true,
		Download:   true,
		OutputDir:  filepath.Join(root, "out"),
		Stdout:     &stdout,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, workflow.OutcomeCompleted, res.Outcome)
	assert.Equal(t, filepath.Join(root, "out", "show-s01.txt"), res.LinksFile)

	for _, name := range []string{"e01.mkv", "e02.mkv"} {
		data, err := os.ReadFile(filepath.Join(root, "downloads", name))
		require.NoError(t, err)
		assert.Equal(t, "content of "+name, string(data))
	}
	links, err := os.ReadFile(res.LinksFile)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(links), "\n"))
	assert.Contains(t, stdout.String(), srv.URL+"/files/e01.mkv")
}

func TestStartHonoursMaxDuration(t *testing.T) {
	cfg := &config.Config{
		Links:    config.Links{TempDir: t.TempDir()},
		Workflow: config.Workflow{MaxDuration: "20ms"},
	}
	cache := &blockingCache{cachedTorrent{torrent: types.Torrent{Id: "T1", Name: "x"}}}

	res := StartWith(context.Background(), cfg, cache, Request{
		Magnet:     "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		PrintLinks: true,
	})
	assert.Equal(t, workflow.OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

type blockingCache struct {
	cachedTorrent
}

func (b *blockingCache) WaitForStatus(ctx context.Context, id, desired string, sizeHint int64) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNewDaemon(t *testing.T) {
	_, ok := NewDaemon(&config.Config{Downloader: config.DownloaderGrab}).(*grab.Grab)
	assert.True(t, ok)
	_, ok = NewDaemon(&config.Config{Downloader: config.DownloaderAria2}).(*aria2.Aria2)
	assert.True(t, ok)
}
