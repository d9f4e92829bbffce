package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-api/internal/app"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

func main() {
	var application *app.App

	root := newRootCmd(func() (*app.App, error) {
		if application != nil {
			return application, nil
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logr, err := logger.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		application, err = app.New(context.Background(), cfg, logr)
		return application, err
	})
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if application != nil {
			_ = application.Logger.Sync()
			application.Close()
		}
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
