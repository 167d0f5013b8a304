// schedctl is the operator CLI for the content scheduler. It talks to the
// store directly, so it works when the API is down and can be driven by crontab:
//
//	*/5 * * * * schedctl process --limit 100
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/fundacion-cms/content-scheduler/config"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/backend"
	ctxlog "github.com/fundacion-cms/content-scheduler/internal/log"
)

func main() {
	logger := ctxlog.New(os.Getenv("ENV"), slog.LevelWarn, os.Stderr)

	open := func(ctx context.Context) (*backend.Stores, func(), error) {
		cfg, err := config.LoadStore()
		if err != nil {
			return nil, nil, err
		}
		stores, err := backend.Open(ctx, *cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return stores, stores.Close, nil
	}

	root, closeStore := newRootCmd(open, logger)
	err := root.Execute()
	closeStore()
	// cobra has already printed the error.
	if err != nil {
		os.Exit(1)
	}
}
