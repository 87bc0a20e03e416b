package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/magnetdl/magnetdl/internal/config"
	appcli "github.com/magnetdl/magnetdl/pkg/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, configBody string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("REAL_DEBRID_API_TOKEN", "")
	t.Setenv("MAGNETDL_DOWNLOADER", "")
	t.Setenv("MAGNETDL_ARIA2_URL", "")

	path := filepath.Join(t.TempDir(), "config.json")
	if configBody != "" {
		require.NoError(t, os.WriteFile(path, []byte(configBody), 0600))
	}
	config.Reload()
	t.Cleanup(config.Reload)

	var stdout, stderr bytes.Buffer
	argv := append([]string{"magnetdl", "--config", path}, args...)
	code := appcli.Execute(context.Background(), argv, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute(t, "", "version")
	require.Equal(t, appcli.ExitOK, code)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestFetchRequiresMagnet(t *testing.T) {
	code, _, stderr := execute(t, "", "fetch", "--token", "x")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, "usage: magnetdl fetch")
}

func TestFetchRequiresToken(t *testing.T) {
	code, _, stderr := execute(t, "", "fetch", "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, "API token is required")
}

func TestFetchInvalidMagnet(t *testing.T) {
	code, _, stderr := execute(t, "", "fetch", "--token", "x", "magnet:?xt=urn:btih:0123456789")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, "invalid magnet link")
}

func TestFetchRejectsUnknownDownloader(t *testing.T) {
	code, _, stderr := execute(t, "", "fetch", "--token", "x", "--downloader", "curl",
		"magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, "unknown downloader")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{"version":"1.37.0","enabledFeatures":[]}}`)
	}))
	defer srv.Close()

	code, stdout, _ := execute(t, fmt.Sprintf(`{"aria2":{"rpc_url":%q}}`, srv.URL+"/jsonrpc"), "health")
	assert.Equal(t, appcli.ExitOK, code)
	assert.Contains(t, stdout, "aria2 1.37.0 is reachable")
}

func TestHealthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	code, _, stderr := execute(t, fmt.Sprintf(`{"aria2":{"rpc_url":%q}}`, srv.URL+"/jsonrpc"), "health")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, "health check failed")
}

func TestHealthGrab(t *testing.T) {
	code, stdout, _ := execute(t, `{"downloader":"grab"}`, "health")
	assert.Equal(t, appcli.ExitOK, code)
	assert.Contains(t, stdout, "grab downloader runs in-process")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := execute(t, "", "frobnicate")
	assert.Equal(t, appcli.ExitFailed, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}
