package limits

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// Manager is the limit registry. Checks take the read lock and never modify the
// registry; SetLimit and RemoveLimit are serialised behind the write lock.
type Manager struct {
	mu      sync.RWMutex
	limits  map[Key]decimal.Decimal
	emitter events.Emitter
	log     zerolog.Logger
}

// NewManager creates an empty registry. emitter may be nil.
func NewManager(emitter events.Emitter, log zerolog.Logger) *Manager {
	return &Manager{
		limits:  make(map[Key]decimal.Decimal),
		emitter: emitter,
		log:     log.With().Str("component", "risk_limits").Logger(),
	}
}

// SetLimit creates or overwrites the threshold for (level, entityID, metric).
// Levels are matched case-insensitively.
func (m *Manager) SetLimit(level Level, entityID, metric string, threshold decimal.Decimal) error {
	limit, err := validateLimit(RiskLimit{Level: level, EntityID: entityID, Metric: metric, Threshold: threshold})
	if err != nil {
		return err
	}
	level = limit.Level

	m.mu.Lock()
	m.limits[limit.Key()] = threshold
	metrics.RegisteredLimits.Set(float64(len(m.limits)))
	m.mu.Unlock()

	m.log.Info().
		Str("level", string(level)).
		Str("entity_id", entityID).
		Str("metric", metric).
		Str("threshold", threshold.String()).
		Msg("Risk limit set")

	m.emit(&events.LimitUpdatedData{
		Level:     string(level),
		EntityID:  entityID,
		Metric:    metric,
		Threshold: threshold.String(),
	})
	return nil
}

// RemoveLimit deletes one limit.
func (m *Manager) RemoveLimit(level Level, entityID, metric string) error {
	level = canonicalLevel(level)
	key := Key{Level: level, EntityID: entityID, Metric: metric}

	m.mu.Lock()
	_, ok := m.limits[key]
	if ok {
		delete(m.limits, key)
		metrics.RegisteredLimits.Set(float64(len(m.limits)))
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrLimitNotFound, level, entityID, metric)
	}

	m.log.Info().Str("level", string(level)).Str("entity_id", entityID).Str("metric", metric).Msg("Risk limit removed")
	m.emit(&events.LimitRemovedData{Level: string(level), EntityID: entityID, Metric: metric})
	return nil
}

// Limits returns every registered limit ordered by level, entity and metric.
func (m *Manager) Limits() []RiskLimit {
	m.mu.RLock()
	out := make([]RiskLimit, 0, len(m.limits))
	for key, threshold := range m.limits {
		out = append(out, RiskLimit{Level: key.Level, EntityID: key.EntityID, Metric: key.Metric, Threshold: threshold})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// CheckLimits compares metrics against every limit registered for (level, entityID).
// A metric violates its limit when it is strictly greater; metrics without a limit,
// and limits without a metric, are ignored.
func (m *Manager) CheckLimits(level Level, entityID string, current map[string]decimal.Decimal) CheckResult {
	level = canonicalLevel(level)
	m.mu.RLock()
	violations := m.violationsLocked(level, entityID, current)
	m.mu.RUnlock()

	return m.finish(level, entityID, violations)
}

// CheckPreTrade checks a strategy's limits and the PORTFOLIO/GLOBAL limits against
// one metrics snapshot, under a single read lock.
func (m *Manager) CheckPreTrade(strategyID string, current map[string]decimal.Decimal) CheckResult {
	m.mu.RLock()
	violations := m.violationsLocked(LevelStrategy, strategyID, current)
	violations = append(violations, m.violationsLocked(LevelPortfolio, GlobalEntity, current)...)
	m.mu.RUnlock()

	return m.finish(LevelStrategy, strategyID, violations)
}

// GetHierarchicalLimits returns the strategy's limits and the PORTFOLIO/GLOBAL limits.
func (m *Manager) GetHierarchicalLimits(strategyID string) HierarchicalLimits {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return HierarchicalLimits{
		Strategy:  m.limitsForLocked(LevelStrategy, strategyID),
		Portfolio: m.limitsForLocked(LevelPortfolio, GlobalEntity),
	}
}

// LimitsFor returns the metric → threshold map of one entity.
func (m *Manager) LimitsFor(level Level, entityID string) map[string]decimal.Decimal {
	level = canonicalLevel(level)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limitsForLocked(level, entityID)
}

func (m *Manager) limitsForLocked(level Level, entityID string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for key, threshold := range m.limits {
		if key.Level == level && key.EntityID == entityID {
			out[key.Metric] = threshold
		}
	}
	return out
}

func (m *Manager) violationsLocked(level Level, entityID string, current map[string]decimal.Decimal) []Violation {
	violations := make([]Violation, 0)
	for key, limit := range m.limits {
		if key.Level != level || key.EntityID != entityID {
			continue
		}
		value, ok := current[key.Metric]
		if !ok || !value.GreaterThan(limit) {
			continue
		}
		violations = append(violations, Violation{
			Level:    level,
			EntityID: entityID,
			Metric:   key.Metric,
			Limit:    limit,
			Current:  value,
		})
	}

	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Metric < violations[j].Metric
	})
	return violations
}

// finish records the outcome of a check. It runs after the read lock is released.
func (m *Manager) finish(level Level, entityID string, violations []Violation) CheckResult {
	result := CheckResult{Approved: len(violations) == 0, Violations: violations}

	metrics.LimitChecksTotal.WithLabelValues(string(level), metrics.Outcome(result.Approved)).Inc()
	if result.Approved {
		return result
	}

	info := make([]events.LimitViolationInfo, 0, len(violations))
	for _, v := range violations {
		metrics.LimitViolationsTotal.WithLabelValues(string(v.Level), v.Metric).Inc()
		info = append(info, events.LimitViolationInfo{
			Level:    string(v.Level),
			EntityID: v.EntityID,
			Metric:   v.Metric,
			Limit:    v.Limit.String(),
			Current:  v.Current.String(),
		})
	}

	m.log.Warn().
		Str("level", string(level)).
		Str("entity_id", entityID).
		Int("violations", len(violations)).
		Msg("Risk limit check rejected")

	m.emit(&events.LimitViolatedData{Level: string(level), EntityID: entityID, Violations: info})
	return result
}

func (m *Manager) emit(data events.EventData) {
	if m.emitter != nil {
		m.emitter.EmitTyped("limits", data)
	}
}

// validateLimit returns the limit with its level in canonical upper case.
func validateLimit(limit RiskLimit) (RiskLimit, error) {
	level, err := ParseLevel(string(limit.Level))
	if err != nil {
		return RiskLimit{}, err
	}
	limit.Level = level
	if err := validate.Struct(limit); err != nil {
		return RiskLimit{}, fmt.Errorf("%w: %v", ErrInvalidLimit, err)
	}
	return limit, nil
}

// canonicalLevel upper-cases a known level and leaves unknown ones untouched.
func canonicalLevel(level Level) Level {
	if parsed, err := ParseLevel(string(level)); err == nil {
		return parsed
	}
	return level
}
