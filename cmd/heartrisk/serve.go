package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/internal/inference"
	"github.com/YuminosukeSato/heartrisk/internal/server"
	"github.com/YuminosukeSato/heartrisk/internal/telemetry"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr, modelPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP; SIGHUP reloads the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srvCfg := c.cfg.Server
			if addr != "" {
				srvCfg.Addr = addr
			}
			if modelPath == "" {
				modelPath = c.cfg.Model.Path
			}
			return serve(cmd.Context(), srvCfg.Addr, modelPath, c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact (overrides model.path)")
	return cmd
}

func serve(parent context.Context, addr, modelPath string, c *cli) error {
	logger := log.GetLoggerWithName("serve")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewWithRegistry(reg)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := inference.NewService(&inference.ModelHandle{}, modelPath, metrics)
	if err := svc.Reload(ctx); err != nil {
		if !errors.Is(err, errors.ErrModelUnavailable) {
			return err
		}
		logger.Warn("Starting without a model; predictions return 503 until one is loaded",
			log.ArtifactPathKey, modelPath)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				// failures are logged and counted by the service
				_ = svc.Reload(ctx)
			}
		}
	}()

	cfg := c.cfg.Server
	cfg.Addr = addr
	return server.New(svc, reg, cfg).Run(ctx)
}
