// Package limits implements the hierarchical risk limit registry consulted by
// pre-trade checks.
package limits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Level is the scope a limit applies to.
type Level string

const (
	LevelPortfolio  Level = "PORTFOLIO"
	LevelStrategy   Level = "STRATEGY"
	LevelInstrument Level = "INSTRUMENT"
)

// GlobalEntity is the entity id portfolio-wide limits are registered under.
const GlobalEntity = "GLOBAL"

var (
	ErrInvalidLevel  = errors.New("invalid limit level")
	ErrInvalidLimit  = errors.New("invalid risk limit")
	ErrLimitNotFound = errors.New("risk limit not found")
)

// ParseLevel accepts level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelPortfolio:
		return LevelPortfolio, nil
	case LevelStrategy:
		return LevelStrategy, nil
	case LevelInstrument:
		return LevelInstrument, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Key identifies one limit in the registry.
type Key struct {
	Level    Level
	EntityID string
	Metric   string
}

// RiskLimit is a configured threshold.
type RiskLimit struct {
	Level     Level           `json:"level" validate:"required,oneof=PORTFOLIO STRATEGY INSTRUMENT"`
	EntityID  string          `json:"entity_id" validate:"required"`
	Metric    string          `json:"metric" validate:"required"`
	Threshold decimal.Decimal `json:"threshold"`
}

// Key returns the registry key of the limit.
func (l RiskLimit) Key() Key {
	return Key{Level: l.Level, EntityID: l.EntityID, Metric: l.Metric}
}

// Violation records a metric that exceeded its limit.
type Violation struct {
	Level    Level           `json:"level"`
	EntityID string          `json:"entity_id"`
	Metric   string          `json:"metric"`
	Limit    decimal.Decimal `json:"limit"`
	Current  decimal.Decimal `json:"current"`
}

// CheckResult is the outcome of a limit check. Approved is false whenever there is a violation.
type CheckResult struct {
	Approved   bool        `json:"approved"`
	Violations []Violation `json:"violations"`
}

// HierarchicalLimits holds a strategy's own limits next to the portfolio-wide ones.
type HierarchicalLimits struct {
	Strategy  map[string]decimal.Decimal `json:"strategy"`
	Portfolio map[string]decimal.Decimal `json:"portfolio"`
}
