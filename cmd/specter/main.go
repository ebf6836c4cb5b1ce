// File: cmd/specter/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/specter-cli/cmd"
	"github.com/xkilldash9x/specter-cli/internal/observability"
)

// main is the entry point of the application.
func main() {
	// Cancel the run context on SIGINT/SIGTERM so in-flight browser and
	// model calls unwind cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
