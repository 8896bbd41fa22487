package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gcsplan/planner/internal/config"
	"github.com/gcsplan/planner/internal/dispatcher"
	"github.com/gcsplan/planner/internal/handlers"
	"github.com/gcsplan/planner/internal/logging"
	"github.com/gcsplan/planner/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var readStdin bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine, sync monitor and telemetry feed, serving JSON-line commands on stdin",
	Args:  cobra.NoArgs,
	RunE:  runEngine,
}

func init() {
	runCmd.Flags().BoolVar(&readStdin, "stdin", true, "serve commands from stdin; EOF stops the engine")
}

func runEngine(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, engineOptions{sync: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	out := newResponder(cmd.OutOrStdout())
	deps := dispatcher.Dependencies{
		Logger:   logging.NewDispatcherLogger(logging.NewZerolog(logWriter(), viper.GetString("logLevel"))),
		OnResult: out.asyncResult,
	}
	if OTelProvider != nil {
		deps.Meter = OTelProvider.Meter("github.com/gcsplan/planner/internal/dispatcher")
	}
	d, err := dispatcher.New(deps)
	if err != nil {
		return err
	}
	defer d.Close()

	handlers.NewService(handlers.Dependencies{
		Engine:          svc.Engine,
		Logger:          Logger,
		DefaultAltitude: config.GetCaptureConfig().DefaultAltitude,
	}).Register(d)
	Logger.Info("Commands registered", "count", len(d.Commands()))

	g, gctx := errgroup.WithContext(ctx)

	if tc := config.GetTelemetryConfig(); tc.Enabled {
		feedDeps := telemetry.Dependencies{
			URL:    tc.URL,
			Sink:   svc.Engine,
			Logger: Logger,
		}
		if svc.Influx != nil {
			feedDeps.Recorder = svc.Influx
		}
		feed := telemetry.New(feedDeps)
		g.Go(func() error { return feed.Run(gctx) })
	}

	if readStdin {
		g.Go(func() error {
			err := serveCommands(gctx, cmd.InOrStdin(), out, d)
			Logger.Info("Command stream closed, shutting down")
			stop()
			return err
		})
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	Logger.Info("Engine running", "waypoints", len(svc.Engine.ListWaypoints()), "sync", svc.Engine.Monitor.IsRunning())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	Logger.Info("Engine stopped")
	return nil
}
