// Command tsgraphd runs the dataset graph scheduler as a long-lived
// daemon: it loads config, binds the configured PersistenceEngines, builds
// the demonstration graph (internal/graphdef), and serves the HTTP/gRPC
// operational surface until a shutdown signal arrives, with signal-driven
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tsgraph/internal/config"
	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/graphdef"
	"tsgraph/internal/notify"
	"tsgraph/internal/runner"
	"tsgraph/internal/timeutil"
	"tsgraph/internal/transport"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	configPath := flag.String("config", "tsgraphd.yaml", "path to the YAML config file")
	flag.Parse()

	log.Printf("tsgraphd starting (commit %s)", BuildCommit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engines, defaultEngine, err := buildEngines(cfg)
	if err != nil {
		log.Fatalf("build engines: %v", err)
	}

	target := timeutil.TimeRange{
		Start: timeutil.MustTimestamp(time.Now().AddDate(-1, 0, 0)),
		End:   timeutil.MustTimestamp(time.Now()),
	}
	tasks, err := graphdef.Build(defaultEngine, "v1", target)
	if err != nil {
		log.Fatalf("build graph: %v", err)
	}
	allTasks := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		allTasks = append(allTasks, t)
	}

	rnr := &runner.Runner{
		Tasks:          allTasks,
		Engines:        engines,
		PerTaskTimeout: time.Duration(cfg.Runner.PerTaskTimeoutMS) * time.Millisecond,
	}

	bus := notify.NewBus()
	var delivery notify.Delivery
	if cfg.Notify.Enabled && cfg.Notify.SvixAuthToken != "" {
		svixClient, err := notify.NewSvixClient(cfg.Notify.SvixAuthToken, "")
		if err != nil {
			log.Fatalf("build svix client: %v", err)
		}
		delivery = svixClient
	} else {
		delivery = &notify.NoopDelivery{}
	}
	orchestrator := notify.NewOrchestrator(bus, delivery)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orchestrator.Run(ctx)

	transport.ConfigureRateLimit(cfg.Transport.RateLimitPerSec, cfg.Transport.RateLimitBurst)
	auth := transport.NewAuthMiddleware(cfg.Transport.JWTSecret, cfg.Transport.APIKey)
	httpServer := transport.NewServer(cfg.Transport.HTTPAddr, rnr, bus, auth, defaultEngine, tasks)
	httpServer.SetNotifyCounts(orchestrator.Counts)

	var probeMD *graph.Task
	for _, t := range tasks {
		probeMD = t
		break
	}
	var grpcServer *transport.GRPCServer
	if probeMD != nil {
		grpcServer = transport.NewGRPCServer(defaultEngine, probeMD.Output())
	}

	go func() {
		log.Printf("HTTP surface listening on %s", cfg.Transport.HTTPAddr)
		if err := httpServer.Start(); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()
	if grpcServer != nil {
		go func() {
			log.Printf("gRPC health surface listening on %s", cfg.Transport.GRPCAddr)
			if err := grpcServer.Serve(cfg.Transport.GRPCAddr); err != nil {
				log.Printf("grpc server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
}

func buildEngines(cfg *config.Config) (map[string]engine.Engine, engine.Engine, error) {
	engines := make(map[string]engine.Engine, len(cfg.Engines))
	var defaultEngine engine.Engine

	for _, ec := range cfg.Engines {
		var eng engine.Engine
		switch ec.Kind {
		case "postgres":
			pg, err := engine.NewPostgresEngine(context.Background(), ec.ID, ec.DatabaseURL)
			if err != nil {
				return nil, nil, err
			}
			eng = pg
		default:
			eng = engine.NewMemoryEngine(ec.ID)
		}
		engines[ec.ID] = eng
		if defaultEngine == nil {
			defaultEngine = eng
		}
	}
	return engines, defaultEngine, nil
}
