package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/magnetdl/magnetdl/cmd/magnetdl"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	appcli "github.com/magnetdl/magnetdl/pkg/cli"
	"github.com/magnetdl/magnetdl/pkg/workflow"
	"github.com/urfave/cli/v2"
)

func init() {
	appcli.Register(&cli.Command{
		Name:      "fetch",
		Usage:     "Cache a magnet on Real-Debrid and print or download its files",
		ArgsUsage: "<magnet>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Aliases: []string{"t"}, Usage: "Real-Debrid API token (overrides config and REAL_DEBRID_API_TOKEN)"},
			&cli.BoolFlag{Name: "links", Aliases: []string{"l"}, Usage: "print the direct download links"},
			&cli.BoolFlag{Name: "aria2", Aliases: []string{"a"}, Usage: "download the files and show progress"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "folder receiving the links file"},
			&cli.StringFlag{Name: "downloader", Usage: "download backend: aria2 or grab"},
			&cli.BoolFlag{Name: "cleanup", Usage: "delete the remote torrent when the run fails or is cancelled"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
		},
		Action: executeFetch,
	})
}

func executeFetch(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: magnetdl fetch [options] <magnet>", appcli.ExitFailed)
	}

	cfg := config.Get()
	if token := c.String("token"); token != "" {
		cfg.RealDebrid.APIKey = token
	}
	if d := c.String("downloader"); d != "" {
		cfg.Downloader = d
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if c.Bool("cleanup") {
		cfg.RealDebrid.CleanupOnFailure = true
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return cli.Exit(fmt.Sprintf("configuration error: %v", err), appcli.ExitFailed)
	}
	if cfg.RealDebrid.APIKey == "" {
		return cli.Exit("a Real-Debrid API token is required (--token or REAL_DEBRID_API_TOKEN)", appcli.ExitFailed)
	}
	if err := logger.Setup(cfg); err != nil {
		_, _ = fmt.Fprintf(c.App.ErrWriter, "file logging disabled: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := magnetdl.Start(ctx, cfg, magnetdl.Request{
		Magnet:     c.Args().First(),
		PrintLinks: c.Bool("links"),
		Download:   c.Bool("aria2"),
		OutputDir:  c.String("output"),
		Stdout:     c.App.Writer,
	})
	return exitFor(c, res)
}

func exitFor(c *cli.Context, res workflow.Result) error {
	switch res.Outcome {
	case workflow.OutcomeCompleted:
		if res.LinksFile != "" {
			_, _ = fmt.Fprintf(c.App.Writer, "Links saved to %s\n", res.LinksFile)
		}
		if res.Unresolved > 0 {
			_, _ = fmt.Fprintf(c.App.ErrWriter, "%d link(s) could not be resolved\n", res.Unresolved)
		}
		return nil
	case workflow.OutcomeCancelled:
		if errors.Is(res.Err, context.DeadlineExceeded) {
			return cli.Exit("run exceeded workflow.max_duration", appcli.ExitFailed)
		}
		return cli.Exit("cancelled", appcli.ExitCancelled)
	default:
		return cli.Exit(res.Err.Error(), appcli.ExitFailed)
	}
}
