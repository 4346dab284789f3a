// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/riskengine/internal/database"
	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/modules/limits"
	limitshandlers "github.com/aristath/riskengine/internal/modules/limits/handlers"
	"github.com/aristath/riskengine/internal/modules/risk"
	riskhandlers "github.com/aristath/riskengine/internal/modules/risk/handlers"
	"github.com/aristath/riskengine/internal/modules/stoploss"
	stophandlers "github.com/aristath/riskengine/internal/modules/stoploss/handlers"
	"github.com/aristath/riskengine/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and is the single source of truth for service instances.
type Container struct {
	// Database holding limit configuration and stop snapshots
	DB *database.DB

	EventBus *events.Bus

	// Calculators
	VaRCalculator         *risk.VaRCalculator
	CorrelationCalculator *risk.CorrelationCalculator
	StressTestService     *risk.StressTestService
	AttributionAnalyzer   *risk.RiskAttributionAnalyzer
	PredictiveAlerts      *risk.PredictiveRiskAlerts

	// Stateful risk controls
	StopBook      *stoploss.Book
	LimitsManager *limits.Manager

	// Repositories
	LimitRepo     *limits.Repository
	SnapshotStore *stoploss.SnapshotStore

	// HTTP handlers
	RiskHandler   *riskhandlers.Handler
	LimitsHandler *limitshandlers.Handler
	StopsHandler  *stophandlers.Handler

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the scheduled jobs so they can also be run on shutdown.
type JobInstances struct {
	ReevaluateStops *scheduler.ReevaluateStopsJob
	SnapshotStops   *scheduler.SnapshotStopsJob
}

// Close releases the database.
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
