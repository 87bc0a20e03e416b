package aria2

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"os/exec"
	"slices"
)

// Launcher starts the daemon process. It must not wait for the process to exit.
type Launcher interface {
	Launch(ctx context.Context, args []string) error
}

// ExecLauncher runs the aria2c binary detached from this process.
type ExecLauncher struct {
	Binary string
	logger zerolog.Logger
}

func NewExecLauncher(binary string, logger zerolog.Logger) *ExecLauncher {
	return &ExecLauncher{Binary: binary, logger: logger}
}

func (l *ExecLauncher) Launch(ctx context.Context, args []string) error {
	path, err := exec.LookPath(l.Binary)
	if err != nil {
		return fmt.Errorf("%s is not installed: %w", l.Binary, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Not CommandContext: the daemon outlives this run.
	cmd := exec.Command(path, slices.Concat(args, platformArgs())...)
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", l.Binary, err)
	}
	l.logger.Info().Msgf("Started %s (pid %d)", l.Binary, cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Debug().Err(err).Msgf("%s launcher exited", l.Binary)
		}
	}()
	return nil
}
