package magnetdl

import (
	"context"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/pkg/debrid/realdebrid"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/magnetdl/magnetdl/pkg/downloader/aria2"
	"github.com/magnetdl/magnetdl/pkg/downloader/grab"
	"github.com/magnetdl/magnetdl/pkg/linkfile"
	"github.com/magnetdl/magnetdl/pkg/progress"
	"github.com/magnetdl/magnetdl/pkg/version"
	"github.com/magnetdl/magnetdl/pkg/workflow"
	"io"
	"os"
)

type Request struct {
	Magnet     string
	PrintLinks bool
	Download   bool
	OutputDir  string
	Stdout     io.Writer
}

// NewDaemon returns the configured download backend.
func NewDaemon(cfg *config.Config) downloader.Daemon {
	switch cfg.Downloader {
	case config.DownloaderGrab:
		return grab.New(cfg.Aria2.DownloadDir)
	default:
		return aria2.New(cfg.Aria2)
	}
}

// Start wires the components from cfg and drives one magnet through the workflow.
func Start(ctx context.Context, cfg *config.Config, req Request) workflow.Result {
	return StartWith(ctx, cfg, realdebrid.New(cfg.RealDebrid), req)
}

// StartWith is Start with an explicit caching service.
func StartWith(ctx context.Context, cfg *config.Config, cache types.Client, req Request) workflow.Result {
	_log := logger.GetDefaultLogger()
	_log.Debug().Msgf("Version: %s", version.GetInfo().String())
	_log.Debug().Msgf("Config: %s", cfg.File)

	stdout := req.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var (
		daemon  downloader.Daemon
		monitor workflow.Monitor
	)
	if req.Download {
		daemon = NewDaemon(cfg)
		monitor = progress.New(daemon, cfg.Monitor, stdout)
	}

	if d := cfg.Workflow.GetMaxDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	c := workflow.New(cache, daemon, monitor, linkfile.New(cfg.Links), workflow.Options{
		PrintLinks: req.PrintLinks,
		Download:   req.Download,
		OutputDir:  req.OutputDir,
		Cleanup:    cfg.RealDebrid.CleanupOnFailure,
		Out:        stdout,
	})
	res := c.Run(ctx, req.Magnet)
	_log.Debug().Msgf("Run ended %s in %s", res.Outcome, res.State)
	return res
}
