package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/workflow"
)

// Runs the asynchronous lane: the outbox dispatcher plus, when SLIP_TOPIC is
// set, the Pub/Sub slip worker. Without SLIP_TOPIC the dispatcher processes
// jobs in-process (direct mode).
func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := workflow.NewSlipJobDispatcher(db, logger)
	go dispatcher.Run(ctx)
	log.Printf("slip job dispatcher started (id=%s)", dispatcher.DispatcherID)

	if config.SlipTopicName() != "" {
		worker := workflow.NewSlipWorker(db, logger)
		log.Printf("slip worker subscribing (topic=%s)", config.SlipTopicName())
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("slip worker stopped: %v", err)
		}
	} else {
		log.Printf("SLIP_TOPIC not set; dispatcher running in direct mode")
		<-ctx.Done()
	}
}
