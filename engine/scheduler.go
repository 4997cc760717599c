package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// InitializeSchedules starts the cron jobs (currently just job pruning). The
// caller stops the returned scheduler on shutdown.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.JobPruneInterval
	if interval <= 0 {
		interval = 10
	}

	c := cron.New()
	var pruneJob cron.Job
	pruneJob = cron.FuncJob(serverHandler.pruneJobFunc)
	pruneJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(pruneJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", interval), pruneJob); err != nil {
		Logger.Error("Unable to schedule job pruning", "error", err)
	}
	Logger.Info("Adding job prune scheduler", "interval_minutes", interval, "retention", serverHandler.retention())
	c.Start()
	return c
}

func (serverHandler *ServerHandler) retention() time.Duration {
	if r := serverHandler.ServerConfig.JobRetention; r > 0 {
		return r
	}
	return 24 * time.Hour
}

// pruneJobFunc forgets finished jobs older than the retention period, both in
// memory and in the ledger
func (serverHandler *ServerHandler) pruneJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in prune job", "panic", r)
		}
	}()

	retention := serverHandler.retention()
	forgotten := serverHandler.Async.Prune(retention)
	deleted := 0
	if serverHandler.DB != nil {
		var err error
		deleted, err = serverHandler.DB.DeleteOldJobs(retention)
		if err != nil {
			Logger.Error("Failed to delete old jobs", "error", err)
		}
	}
	Logger.Info("Pruned finished render jobs", "in_memory", forgotten, "ledger", deleted)
}
