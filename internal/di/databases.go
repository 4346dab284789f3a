package di

import (
	"context"
	"fmt"

	"github.com/aristath/riskengine/internal/config"
	"github.com/aristath/riskengine/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the risk database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "risk",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize risk database: %w", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate risk database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Risk database ready")

	return &Container{DB: db}, nil
}
