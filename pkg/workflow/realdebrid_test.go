package workflow

import (
	"context"
	"fmt"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/pkg/debrid/realdebrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRealDebrid walks a torrent through waiting_files_selection, then
// downloading, then downloaded.
func fakeRealDebrid(t *testing.T) *httptest.Server {
	var selected atomic.Bool
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /torrents/addMagnet", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"id":"T1"}`)
	})
	mux.HandleFunc("POST /torrents/selectFiles/T1", func(w http.ResponseWriter, r *http.Request) {
		selected.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /torrents/info/T1", func(w http.ResponseWriter, r *http.Request) {
		status, links := "waiting_files_selection", `[]`
		if selected.Load() {
			status = "downloading"
			if polls.Add(1) > 2 {
				status = "downloaded"
				links = `["https://real-debrid.com/d/A","https://real-debrid.com/d/B"]`
			}
		}
		_, _ = fmt.Fprintf(w, `{"id":"T1","filename":"Show","bytes":1000,"status":%q,
			"files":[{"id":1,"path":"/Show/a.mkv","bytes":500,"selected":1},{"id":2,"path":"/Show/b.mkv","bytes":500,"selected":1}],
			"links":%s}`, status, links)
	})
	mux.HandleFunc("POST /unrestrict/link", func(w http.ResponseWriter, r *http.Request) {
		link := r.FormValue("link")
		id := link[strings.LastIndex(link, "/")+1:]
		_, _ = fmt.Fprintf(w, `{"id":%q,"download":"https://cdn.example/%s"}`, id, id)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRealDebrid(srv *httptest.Server, interval time.Duration) *realdebrid.RealDebrid {
	return realdebrid.New(config.RealDebrid{APIKey: "token", Host: srv.URL, RateLimit: "1000/second"},
		realdebrid.WithSelectionPolling(time.Millisecond, 10),
		realdebrid.WithPostDelay(0),
		realdebrid.WithPollPolicy(func(int64) realdebrid.PollPolicy {
			return realdebrid.PollPolicy{Attempts: 10, Interval: interval, Max: interval}
		}),
	)
}

func TestRealDebridRunReachesDispatch(t *testing.T) {
	srv := fakeRealDebrid(t)
	c := New(newRealDebrid(srv, time.Millisecond), nil, nil, nil, Options{PrintLinks: true})

	res := c.Run(context.Background(), magnet)
	require.NoError(t, res.Err)
	assert.Contains(t, states(res.Trace), DispatchDownloads)
	require.Len(t, res.Links, 2)
	for _, l := range res.Links {
		assert.True(t, strings.HasPrefix(l.URL, "https://cdn.example/"))
	}
}

func TestRealDebridRunCancelledWithinOneInterval(t *testing.T) {
	srv := fakeRealDebrid(t)
	c := New(newRealDebrid(srv, time.Hour), nil, nil, nil, Options{PrintLinks: true})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	res := c.Run(ctx, magnet)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, AwaitCaching, res.State)
	assert.NotContains(t, states(res.Trace), DispatchDownloads)
}
