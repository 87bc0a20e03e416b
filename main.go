package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/magnetdl/magnetdl/pkg/cli"
	_ "github.com/magnetdl/magnetdl/pkg/cli/commands"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Recovered from panic in main: %v\n", r)
			debug.PrintStack()
			os.Exit(cli.ExitFailed)
		}
	}()
	os.Exit(cli.Execute(context.Background(), os.Args, os.Stdout, os.Stderr))
}
