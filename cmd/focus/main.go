// cmd/focus/main.go
//
// This is the entry point for the focus CLI. Interrupts cancel the command
// context, which stops a running session before the process exits.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/focus/internal/cli"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version, commit)
	cli.Execute(ctx, cli.NewRootCommand())
}
