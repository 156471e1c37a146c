// Command resmgr runs the reference Resource Manager: it listens for
// CREATE_WORKER/REMOVE_WORKER requests from a Brain and execs/kills a
// worker binary per request, mirroring the original standalone resource
// manager's subprocess-per-worker model.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/platform/envutil"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/resmgr"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	mqHost := envutil.String("MQ_HOST", "localhost:6379")
	workerBin := envutil.String("WORKER_BIN_PATH", "./worker")

	b, err := bus.NewRedis(mqHost)
	if err != nil {
		log.Error("failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	spawner := resmgr.NewProcessSpawner(workerBin)
	manager := resmgr.New(b, spawner, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sub, err := manager.Run(ctx)
	if err != nil {
		log.Error("failed to start resource manager", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("resource manager starting", "worker_bin", workerBin)
	<-ctx.Done()
}
