package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetPulse/internal/api"
	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/discovery"
	"Go2NetPulse/internal/engine/capture"
	"Go2NetPulse/internal/engine/stats"
	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/metrics"
	"Go2NetPulse/internal/model"
	"Go2NetPulse/internal/probe"
	"Go2NetPulse/internal/query"
	"Go2NetPulse/internal/snapshot"
	pcapsrc "Go2NetPulse/pkg/pcap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 5 * time.Second
	healthPollInterval = time.Second
)

var (
	serveInterface string
	serveAutostart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture engine and the HTTP/gRPC API",
	Long: `
Run the capture engine behind the HTTP API. Capture is idle until POST /api/start
unless --autostart is given.

Examples:
  ns-monitor serve                        # listen on :5000 with configs/config.yaml
  ns-monitor serve -i eth0 --autostart    # capture on eth0 right away
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveInterface, "interface", "i", "", "capture interface (overrides capture.interface)")
	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "start capturing immediately")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveInterface != "" {
		cfg.Capture.Interface = serveInterface
	}
	if cmd.Flags().Changed("autostart") {
		cfg.Capture.Autostart = serveAutostart
	}
	log := logging.For("serve")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var sinks []model.RecordSink
	if cfg.Publisher.Enabled {
		pub, err := probe.NewPublisher(cfg.Publisher)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	sourceOpts := pcapsrc.Options{
		SnapshotLen: cfg.Capture.SnapshotLen,
		Promiscuous: cfg.Capture.Promiscuous,
		ReadTimeout: cfg.Capture.ReadTimeoutDuration(),
		File:        cfg.Capture.PcapFile,
	}
	engine := capture.New(capture.Options{
		Opener:         sourceOpts.Open,
		Interface:      cfg.Capture.Interface,
		RecentCapacity: stats.DefaultRecentCapacity,
		Metrics:        metrics.New(reg),
		Sinks:          sinks,
	})
	querier := query.NewQuerier(engine.Reader(), engine)

	scanner, err := discovery.NewScanner(scannerConfig(cfg))
	if err != nil {
		return err
	}

	writers, err := snapshot.NewWriters(cfg.Snapshot.Writers)
	if err != nil {
		return err
	}
	snapshotter := snapshot.NewSnapshotter(querier, writers, cfg.Snapshot.TopTalkers)

	httpServer := &http.Server{
		Addr: cfg.API.HttpListenAddr,
		Handler: api.NewRouter(api.Deps{
			Controller: engine,
			Querier:    querier,
			Scanner:    scanner,
			Gatherer:   reg,
			Config:     cfg.API,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *api.GRPCServer
	var grpcListener net.Listener
	if cfg.API.GrpcListenAddr != "" {
		grpcListener, err = net.Listen("tcp", cfg.API.GrpcListenAddr)
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", cfg.API.GrpcListenAddr, err)
		}
		grpcServer = api.NewGRPCServer(engine)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Capture.Autostart {
		if err := engine.Start(""); err != nil {
			log.WithError(err).Warn("Autostart failed, capture stays idle")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", httpServer.Addr).Info("HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error { return grpcServer.Serve(grpcListener) })
		g.Go(func() error {
			grpcServer.Watch(gctx, healthPollInterval)
			return nil
		})
	}
	g.Go(func() error { return snapshotter.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Capture did not stop in time")
		}
		if grpcServer != nil {
			grpcServer.Stop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("ns-monitor exited")
	return err
}

func scannerConfig(cfg *config.Config) discovery.Config {
	iface := cfg.Discovery.Interface
	if iface == "" {
		iface = cfg.Capture.Interface
	}
	return discovery.Config{
		Interface:         iface,
		Wait:              cfg.Discovery.WaitDuration(),
		RateLimit:         cfg.Discovery.RateLimitDuration(),
		MaxHosts:          cfg.Discovery.MaxHosts,
		HostnameCacheSize: cfg.Discovery.HostnameCacheSize,
	}
}
