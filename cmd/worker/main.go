// Command worker runs one Worker protocol client process: it speaks the
// handshake/config/event protocol to a Brain and schedules whichever
// pipeline runner PIPELINE_NAME names.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/config"
	"github.com/weitingchou/jagereye/internal/observability"
	"github.com/weitingchou/jagereye/internal/pipeline"
	"github.com/weitingchou/jagereye/internal/pipeline/noop"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
	"github.com/weitingchou/jagereye/internal/workerclient"
)

// registry binds the pipeline stage names this binary knows how to run.
// Real deployments register motion/object/tripwire runners here; noop is
// the only one built into this repository.
func registry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	r.Register("noop", noop.New)
	return r
}

func main() {
	cfg := config.LoadWorkerConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.WorkerID == "" {
		log.Error("WORKER_ID is required")
		os.Exit(1)
	}

	b, err := bus.NewRedis(cfg.MQHost)
	if err != nil {
		log.Error("failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	s, err := store.NewRedis(cfg.MemDBHost)
	if err != nil {
		log.Error("failed to connect to memory store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	metrics := observability.Init(log)
	if metrics != nil {
		metrics.StartServer(context.Background(), log, cfg.MetricsAddr)
	}

	client := workerclient.New(workerclient.Config{
		Name:              cfg.Name,
		WorkerID:          cfg.WorkerID,
		SharedDir:         cfg.SharedDir,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PipelineName:      cfg.PipelineName,
	}, b, s, registry(), metrics, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("worker starting", "worker_id", cfg.WorkerID, "pipeline", cfg.PipelineName)
	if err := client.Run(ctx); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}
