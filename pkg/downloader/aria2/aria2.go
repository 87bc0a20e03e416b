package aria2

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/internal/request"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const maxConnections = 16

var ErrDaemonUnavailable = errors.New("aria2: daemon unavailable")

var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength",
	"downloadSpeed", "connections", "errorMessage",
}

type Aria2 struct {
	url          string
	secret       string
	dir          string
	connections  int
	extraArgs    []string
	spawnRetries int
	spawnDelay   time.Duration
	client       *request.Client
	launcher     Launcher
	logger       zerolog.Logger
	mu           sync.Mutex
}

var _ downloader.Daemon = (*Aria2)(nil)

type Option func(*Aria2)

func WithLauncher(l Launcher) Option {
	return func(a *Aria2) {
		a.launcher = l
	}
}

func WithSpawnDelay(d time.Duration) Option {
	return func(a *Aria2) {
		a.spawnDelay = d
	}
}

func New(cfg config.Aria2, opts ...Option) *Aria2 {
	log := logger.New("aria2")
	a := &Aria2{
		url:          cfg.RPCURL,
		secret:       cfg.Secret,
		dir:          cfg.DownloadDir,
		connections:  max(1, min(cmp.Or(cfg.Connections, maxConnections), maxConnections)),
		extraArgs:    cfg.ExtraArgs,
		spawnRetries: max(cfg.SpawnRetries, 1),
		spawnDelay:   cfg.GetSpawnDelay(),
		logger:       log,
		client: request.New(
			request.WithMaxRetries(0),
			request.WithTimeout(15*time.Second),
			request.WithLogger(log),
		),
	}
	a.launcher = NewExecLauncher(cmp.Or(cfg.Binary, "aria2c"), log)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aria2) Name() string {
	return "aria2"
}

// Version probes the daemon.
func (a *Aria2) Version(ctx context.Context) (string, error) {
	result, err := a.call(ctx, "aria2.getVersion")
	if err != nil {
		return "", err
	}
	return string(result.GetStringBytes("version")), nil
}

func (a *Aria2) spawnArgs() []string {
	port := "6800"
	if u, err := url.Parse(a.url); err == nil && u.Port() != "" {
		port = u.Port()
	}
	args := []string{
		"--enable-rpc",
		"--rpc-listen-port=" + port,
		"--continue=true",
		fmt.Sprintf("--max-connection-per-server=%d", a.connections),
	}
	if a.secret != "" {
		args = append(args, "--rpc-secret="+a.secret)
	}
	if a.dir != "" {
		args = append(args, "--dir="+a.dir)
	}
	return append(args, a.extraArgs...)
}

// EnsureRunning probes the daemon and launches it when nothing answers.
// A daemon that already answers is left alone, even when it rejects the version check:
// a wrong secret is returned as the *RPCError, not fixed by a second daemon.
func (a *Aria2) EnsureRunning(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	version, err := a.Version(ctx)
	if err == nil {
		a.logger.Debug().Msgf("aria2 %s is running", version)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("aria2 at %s is running but rejected aria2.getVersion: %w", a.url, err)
	}

	a.logger.Info().Msg("aria2 is not running, starting it")
	if err := a.launcher.Launch(ctx, a.spawnArgs()); err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	for attempt := 1; attempt <= a.spawnRetries; attempt++ {
		t := time.NewTimer(a.spawnDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if version, err = a.Version(ctx); err == nil {
			a.logger.Info().Msgf("aria2 %s started", version)
			return nil
		}
		a.logger.Debug().Err(err).Int("attempt", attempt).Msg("aria2 not answering yet")
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDaemonUnavailable, a.spawnRetries, err)
}

func (a *Aria2) AddTask(ctx context.Context, uri string, opts downloader.Options) (string, error) {
	options := map[string]string{
		"dir": cmp.Or(opts.Dir, a.dir),
	}
	if opts.Out != "" {
		options["out"] = opts.Out
	}
	conns := strconv.Itoa(max(1, min(cmp.Or(opts.Connections, a.connections), maxConnections)))
	options["max-connection-per-server"] = conns
	options["split"] = conns

	result, err := a.call(ctx, "aria2.addUri", []string{uri}, options)
	if err != nil {
		return "", err
	}
	gid := string(result.GetStringBytes())
	if gid == "" {
		return "", fmt.Errorf("aria2.addUri returned no gid")
	}
	return gid, nil
}

func (a *Aria2) GetStatus(ctx context.Context, gid string) (downloader.TaskStatus, error) {
	result, err := a.call(ctx, "aria2.tellStatus", gid, statusKeys)
	if err != nil {
		return downloader.TaskStatus{}, err
	}
	return parseStatus(result)
}

func parseStatus(v *fastjson.Value) (downloader.TaskStatus, error) {
	status := downloader.TaskStatus{
		GID:          string(v.GetStringBytes("gid")),
		Status:       string(v.GetStringBytes("status")),
		ErrorMessage: string(v.GetStringBytes("errorMessage")),
	}
	var err error
	if status.TotalLength, err = numeric(v, "totalLength"); err != nil {
		return status, err
	}
	if status.CompletedLength, err = numeric(v, "completedLength"); err != nil {
		return status, err
	}
	if status.DownloadSpeed, err = numeric(v, "downloadSpeed"); err != nil {
		return status, err
	}
	conns, err := numeric(v, "connections")
	if err != nil {
		return status, err
	}
	status.Connections = int(conns)
	return status, nil
}

// numeric reads one of aria2's decimal-string fields; absent means 0.
func numeric(v *fastjson.Value, key string) (int64, error) {
	raw := v.GetStringBytes(key)
	if len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("aria2 %s: %w", key, err)
	}
	return n, nil
}

// RemoveTask asks the daemon to drop gid. Failures are logged only.
func (a *Aria2) RemoveTask(ctx context.Context, gid string) bool {
	if _, err := a.call(ctx, "aria2.remove", gid); err != nil {
		a.logger.Warn().Err(err).Msgf("Failed to remove task %s", gid)
		return false
	}
	return true
}
