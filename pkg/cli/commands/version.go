package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	appcli "github.com/magnetdl/magnetdl/pkg/cli"
	"github.com/magnetdl/magnetdl/pkg/version"
	"github.com/urfave/cli/v2"
)

func init() {
	appcli.Register(&cli.Command{
		Name:   "version",
		Usage:  "Print version information",
		Action: executeVersion,
	})
}

func executeVersion(c *cli.Context) error {
	info := version.GetInfo()
	jsonOutput, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version info: %w", err)
	}
	_, _ = fmt.Fprintln(c.App.Writer, string(jsonOutput))
	return nil
}
