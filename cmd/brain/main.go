// Command brain runs one Brain coordinator instance, serving a single
// analyzer typename, the way cmd/main.go wires and runs the monolith.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/weitingchou/jagereye/internal/brain"
	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/config"
	"github.com/weitingchou/jagereye/internal/eventagent"
	"github.com/weitingchou/jagereye/internal/eventstore/pgeventstore"
	"github.com/weitingchou/jagereye/internal/observability"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
	"github.com/weitingchou/jagereye/internal/ticket"
	"github.com/weitingchou/jagereye/internal/workeragent"
)

func main() {
	cfg := config.LoadBrainConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Typename == "" {
		log.Error("TYPENAME is required")
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

	db, err := pgeventstore.New(pgeventstore.Config{
		Host:     cfg.EventDBHost,
		Port:     cfg.EventDBPort,
		User:     cfg.EventDBUser,
		Password: cfg.EventDBPassword,
		DBName:   cfg.EventDBName,
	}, log)
	if err != nil {
		log.Error("failed to connect to event store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics := observability.Init(log)
	if metrics != nil {
		metrics.StartServer(context.Background(), log, cfg.MetricsAddr)
	}

	workerAgent := workeragent.New(cfg.Typename, s)
	ticketAgent := ticket.New(s)
	eventAgent := eventagent.New(s, db, metrics, log)

	coord := brain.New(brain.Config{
		Typename:         cfg.Typename,
		ChPublic:         cfg.ChPublic,
		ExamineInterval:  cfg.ExamineInterval,
		ExamineThreshold: cfg.ExamineThreshold,
	}, b, workerAgent, ticketAgent, eventAgent, metrics, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("brain starting", "typename", cfg.Typename)
	if err := coord.Run(ctx); err != nil {
		log.Error("brain exited with error", "error", err)
		os.Exit(1)
	}
}
