package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/pkg/version"
	"github.com/urfave/cli/v2"
)

const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitCancelled = 130
)

var commands = map[string]*cli.Command{}

// Register adds a subcommand. Commands register themselves from init.
func Register(cmd *cli.Command) {
	commands[cmd.Name] = cmd
}

// NewApp assembles the registered commands into an application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	cmds := make([]*cli.Command, 0, len(commands))
	for _, cmd := range commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	return &cli.App{
		Name:    "magnetdl",
		Usage:   "turn magnet links into direct downloads through Real-Debrid",
		Version: version.GetInfo().String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file (json or yaml)",
				Value:   config.DefaultPath(),
				EnvVars: []string{"MAGNETDL_CONFIG"},
			},
		},
		Commands: cmds,
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return cli.Exit(fmt.Sprintf("unknown command %q", c.Args().First()), ExitFailed)
			}
			return cli.ShowAppHelp(c)
		},
		Before: func(c *cli.Context) error {
			config.SetConfigPath(c.String("config"))
			return nil
		},
		Writer:         stdout,
		ErrWriter:      stderr,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Execute runs the application and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := NewApp(stdout, stderr).RunContext(ctx, args)
	if err == nil {
		return ExitOK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			_, _ = io.WriteString(stderr, msg+"\n")
		}
		return exitErr.ExitCode()
	}
	_, _ = io.WriteString(stderr, err.Error()+"\n")
	return ExitFailed
}
