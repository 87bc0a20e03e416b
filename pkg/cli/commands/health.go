package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/magnetdl/magnetdl/internal/config"
	appcli "github.com/magnetdl/magnetdl/pkg/cli"
	"github.com/magnetdl/magnetdl/pkg/downloader/aria2"
	"github.com/urfave/cli/v2"
)

func init() {
	appcli.Register(&cli.Command{
		Name:  "health",
		Usage: "Check that the aria2 RPC endpoint answers",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Value: 3 * time.Second, Usage: "timeout for health check"},
		},
		Action: executeHealth,
	})
}

func executeHealth(c *cli.Context) error {
	cfg := config.Get()
	if cfg.Downloader != config.DownloaderAria2 {
		_, _ = fmt.Fprintf(c.App.Writer, "%s downloader runs in-process, nothing to check\n", cfg.Downloader)
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	v, err := aria2.New(cfg.Aria2).Version(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("health check failed: %v", err), appcli.ExitFailed)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "aria2 %s is reachable at %s\n", v, cfg.Aria2.RPCURL)
	return nil
}
