package di

import (
	"fmt"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers stop maintenance jobs.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.StopBook == nil {
		return nil, fmt.Errorf("container services not initialized")
	}

	container.Scheduler = scheduler.New(log)

	instances := &JobInstances{
		ReevaluateStops: scheduler.NewReevaluateStopsJob(container.StopBook, log),
		SnapshotStops: scheduler.NewSnapshotStopsJob(
			container.StopBook,
			container.SnapshotStore,
			cfg.Scheduler.SnapshotRetention,
			log,
		),
	}

	if err := container.Scheduler.AddJob(cfg.Scheduler.ReevaluateSchedule, instances.ReevaluateStops); err != nil {
		return nil, err
	}
	if err := container.Scheduler.AddJob(cfg.Scheduler.SnapshotSchedule, instances.SnapshotStops); err != nil {
		return nil, err
	}

	return instances, nil
}
