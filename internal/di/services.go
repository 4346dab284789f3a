package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/modules/limits"
	limitshandlers "github.com/aristath/riskengine/internal/modules/limits/handlers"
	"github.com/aristath/riskengine/internal/modules/risk"
	riskhandlers "github.com/aristath/riskengine/internal/modules/risk/handlers"
	"github.com/aristath/riskengine/internal/modules/stoploss"
	stophandlers "github.com/aristath/riskengine/internal/modules/stoploss/handlers"
	"github.com/rs/zerolog"
)

// InitializeServices builds the calculators, risk controls and handlers, then
// restores persisted limits and stops.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database not initialized")
	}

	container.EventBus = events.NewBus(log)

	zScores := risk.DefaultZScoreTable().Merge(cfg.Risk.ZScores)
	if cfg.Risk.InverseNormal {
		zScores = zScores.WithInverseNormal()
	}
	container.VaRCalculator = risk.NewVaRCalculator(zScores)
	container.CorrelationCalculator = risk.NewCorrelationCalculator()
	container.StressTestService = risk.NewStressTestService(
		risk.DefaultScenarioTable().Merge(cfg.Risk.Scenarios),
		risk.StressTestOptions{
			StrictScenarios: cfg.Risk.StrictScenarios,
			Seed:            cfg.Risk.MonteCarloSeed,
		},
		log,
	)
	container.AttributionAnalyzer = risk.NewRiskAttributionAnalyzer(log)

	predictive := risk.DefaultPredictiveOptions()
	predictive.MarginCallThreshold = cfg.Risk.MarginCallThreshold
	predictive.SpikeSigmas = cfg.Risk.SpikeSigmas
	container.PredictiveAlerts = risk.NewPredictiveRiskAlerts(predictive, log)

	container.StopBook = stoploss.NewBook(container.EventBus, log)
	container.LimitsManager = limits.NewManager(container.EventBus, log)
	container.LimitRepo = limits.NewRepository(container.DB.Conn(), log)
	container.SnapshotStore = stoploss.NewSnapshotStore(container.DB.Conn(), log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loaded, err := limits.LoadInto(ctx, container.LimitRepo, container.LimitsManager)
	if err != nil {
		return fmt.Errorf("failed to load risk limits: %w", err)
	}
	restored, err := stoploss.RestoreBook(ctx, container.SnapshotStore, container.StopBook)
	if err != nil {
		return fmt.Errorf("failed to restore stops: %w", err)
	}

	container.RiskHandler = riskhandlers.NewHandler(
		container.VaRCalculator,
		container.CorrelationCalculator,
		container.StressTestService,
		container.AttributionAnalyzer,
		container.PredictiveAlerts,
		container.EventBus,
		riskhandlers.Options{
			DefaultIterations: cfg.Risk.MonteCarloIterations,
			DefaultDays:       cfg.Risk.MonteCarloDays,
			MaxIterations:     cfg.Risk.MaxIterations,
			MonteCarloTimeout: cfg.Risk.MonteCarloTimeout,
		},
		log,
	)
	container.LimitsHandler = limitshandlers.NewHandler(container.LimitsManager, container.LimitRepo, log)
	container.StopsHandler = stophandlers.NewHandler(container.StopBook, log)

	log.Info().
		Int("limits", loaded).
		Int("stops", restored).
		Int("scenarios", len(container.StressTestService.Scenarios())).
		Msg("Risk services initialized")

	return nil
}
