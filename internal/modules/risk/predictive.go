package risk

import (
	"fmt"
	"math"

	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/rs/zerolog"
)

// VolatilityTrend describes the current volatility regime.
type VolatilityTrend string

const (
	VolatilityIncreasing VolatilityTrend = "INCREASING"
	VolatilityStable     VolatilityTrend = "STABLE"
	VolatilityDecreasing VolatilityTrend = "DECREASING"
)

// MarginRiskLevel grades how close a margin call is.
type MarginRiskLevel string

const (
	MarginRiskLow      MarginRiskLevel = "LOW"
	MarginRiskMedium   MarginRiskLevel = "MEDIUM"
	MarginRiskHigh     MarginRiskLevel = "HIGH"
	MarginRiskCritical MarginRiskLevel = "CRITICAL"
)

// breachHorizonDays is the horizon within which a predicted VaR breach counts as likely.
const breachHorizonDays = 5

// maxForecastDays caps extrapolated breach horizons; anything further is not reported as a day count.
const maxForecastDays = 3650

// PredictiveOptions tunes PredictiveRiskAlerts.
type PredictiveOptions struct {
	RegimeMultipliers   map[VolatilityTrend]float64
	MarginCallThreshold float64
	SpikeSigmas         float64
}

// DefaultPredictiveOptions returns the 1.3/1.0/0.7 regime multipliers, a 95% margin-call
// threshold and a 2-sigma spike rule.
func DefaultPredictiveOptions() PredictiveOptions {
	return PredictiveOptions{
		RegimeMultipliers: map[VolatilityTrend]float64{
			VolatilityIncreasing: 1.3,
			VolatilityStable:     1.0,
			VolatilityDecreasing: 0.7,
		},
		MarginCallThreshold: 95.0,
		SpikeSigmas:         2.0,
	}
}

// VaRBreachInput is the VaR history to extrapolate.
type VaRBreachInput struct {
	CurrentVaR      float64         `json:"current_var"`
	VaRLimit        float64         `json:"var_limit" validate:"gt=0"`
	VaRTrend        []float64       `json:"var_trend"`
	VolatilityTrend VolatilityTrend `json:"volatility_trend"`
}

// VaRBreachPrediction is the extrapolated VaR breach forecast.
// DaysUntilBreach is nil when VaR is not trending towards the limit.
type VaRBreachPrediction struct {
	BreachLikely    bool    `json:"breach_likely"`
	DaysUntilBreach *int    `json:"days_until_breach"`
	Confidence      float64 `json:"confidence"`
	DailyIncrease   float64 `json:"daily_increase"`
	Recommendation  string  `json:"recommendation"`
}

// MarginCallInput is the margin utilisation history, in percent, sampled every IntervalHours.
type MarginCallInput struct {
	CurrentUtilization float64   `json:"current_utilization" validate:"gte=0"`
	UtilizationTrend   []float64 `json:"utilization_trend"`
	IntervalHours      float64   `json:"interval_hours" validate:"gte=0"`
}

// MarginCallPrediction is the extrapolated margin-call forecast.
type MarginCallPrediction struct {
	RiskLevel      MarginRiskLevel `json:"risk_level"`
	HoursUntilCall *float64        `json:"hours_until_call"`
	HourlyIncrease float64         `json:"hourly_increase"`
	Recommendation string          `json:"recommendation"`
}

// VolatilitySpike is the result of the n-sigma spike rule.
type VolatilitySpike struct {
	SpikeDetected  bool    `json:"spike_detected"`
	SpikeMagnitude float64 `json:"spike_magnitude"`
	Current        float64 `json:"current"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	Threshold      float64 `json:"threshold"`
}

// PredictiveRiskAlerts forecasts VaR breaches, margin calls and volatility spikes by
// extrapolating the least-squares trend of recent observations.
type PredictiveRiskAlerts struct {
	opts PredictiveOptions
	log  zerolog.Logger
}

// NewPredictiveRiskAlerts creates the alert engine.
func NewPredictiveRiskAlerts(opts PredictiveOptions, log zerolog.Logger) *PredictiveRiskAlerts {
	return &PredictiveRiskAlerts{
		opts: opts,
		log:  log.With().Str("component", "predictive_alerts").Logger(),
	}
}

func (p *PredictiveRiskAlerts) regimeMultiplier(trend VolatilityTrend) float64 {
	if m, ok := p.opts.RegimeMultipliers[trend]; ok {
		return m
	}
	return 1.0
}

// PredictVaRBreach extrapolates the VaR trend against the limit.
func (p *PredictiveRiskAlerts) PredictVaRBreach(in VaRBreachInput) VaRBreachPrediction {
	slope := formulas.LinearRegressionSlope(in.VaRTrend) * p.regimeMultiplier(in.VolatilityTrend)
	if !isFinite(slope) {
		slope = 0
	}
	pred := VaRBreachPrediction{DailyIncrease: slope}

	if in.CurrentVaR >= in.VaRLimit {
		days := 0
		pred.BreachLikely = true
		pred.DaysUntilBreach = &days
		pred.Confidence = breachConfidence(days)
		pred.Recommendation = "VaR limit already breached: reduce exposure immediately"
		return pred
	}

	if slope <= 0 {
		pred.Recommendation = "VaR stable or decreasing: no action required"
		return pred
	}

	daysF := math.Ceil((in.VaRLimit - in.CurrentVaR) / slope)
	if !isFinite(daysF) || daysF > maxForecastDays {
		pred.Confidence = breachConfidence(maxForecastDays)
		pred.Recommendation = breachRecommendation(maxForecastDays)
		return pred
	}

	days := int(daysF)
	pred.DaysUntilBreach = &days
	pred.BreachLikely = days <= breachHorizonDays
	pred.Confidence = breachConfidence(days)
	pred.Recommendation = breachRecommendation(days)

	if pred.BreachLikely {
		p.log.Info().
			Int("days_until_breach", days).
			Float64("daily_increase", slope).
			Msg("VaR breach predicted")
	}

	return pred
}

func breachConfidence(days int) float64 {
	switch {
	case days <= 1:
		return 85.0
	case days <= 3:
		return 70.0
	case days <= 5:
		return 55.0
	default:
		return 40.0
	}
}

func breachRecommendation(days int) string {
	switch {
	case days <= 1:
		return "URGENT: reduce positions now, VaR limit breach expected within 1 day"
	case days <= 3:
		return fmt.Sprintf("Reduce exposure: VaR limit breach expected within %d days", days)
	case days <= 5:
		return fmt.Sprintf("Review positions: VaR trending towards limit within %d days", days)
	default:
		return "Monitor: VaR rising but limit is not near"
	}
}

// PredictMarginCall extrapolates margin utilisation against the margin-call threshold.
func (p *PredictiveRiskAlerts) PredictMarginCall(in MarginCallInput) MarginCallPrediction {
	interval := in.IntervalHours
	if interval <= 0 {
		interval = 1
	}
	hourly := formulas.LinearRegressionSlope(in.UtilizationTrend) / interval
	if !isFinite(hourly) {
		hourly = 0
	}
	pred := MarginCallPrediction{HourlyIncrease: hourly}

	if in.CurrentUtilization >= p.opts.MarginCallThreshold {
		hours := 0.0
		pred.RiskLevel = MarginRiskCritical
		pred.HoursUntilCall = &hours
		pred.Recommendation = marginRecommendation(MarginRiskCritical)
		return pred
	}

	hours := (p.opts.MarginCallThreshold - in.CurrentUtilization) / hourly
	if hourly <= 0 || !isFinite(hours) {
		pred.RiskLevel = MarginRiskLow
		pred.Recommendation = "Margin utilisation stable: no action required"
		return pred
	}
	pred.HoursUntilCall = &hours

	switch {
	case hours <= 24:
		pred.RiskLevel = MarginRiskCritical
	case hours <= 48:
		pred.RiskLevel = MarginRiskHigh
	case hours <= 72:
		pred.RiskLevel = MarginRiskMedium
	default:
		pred.RiskLevel = MarginRiskLow
	}
	pred.Recommendation = marginRecommendation(pred.RiskLevel)

	return pred
}

func marginRecommendation(level MarginRiskLevel) string {
	switch level {
	case MarginRiskCritical:
		return "Close or hedge positions and add collateral now"
	case MarginRiskHigh:
		return "Reduce leverage within the next day"
	case MarginRiskMedium:
		return "Plan leverage reduction and monitor utilisation"
	default:
		return "Monitor margin utilisation"
	}
}

// DetectVolatilitySpike applies the n-sigma rule. The last value is the current observation,
// the rest form the history. Fewer than two history points never flag a spike.
func (p *PredictiveRiskAlerts) DetectVolatilitySpike(series []float64) VolatilitySpike {
	if len(series) < 3 {
		spike := VolatilitySpike{}
		if len(series) > 0 {
			spike.Current = series[len(series)-1]
		}
		return spike
	}

	history := series[:len(series)-1]
	current := series[len(series)-1]
	mean := formulas.Mean(history)
	std := formulas.StdDev(history)

	spike := VolatilitySpike{
		Current:   current,
		Mean:      mean,
		StdDev:    std,
		Threshold: mean + p.opts.SpikeSigmas*std,
	}
	spike.SpikeDetected = current > spike.Threshold
	if magnitude := (current - mean) / mean * 100; mean != 0 && isFinite(magnitude) {
		spike.SpikeMagnitude = magnitude
	}

	if spike.SpikeDetected {
		p.log.Info().
			Float64("current", current).
			Float64("threshold", spike.Threshold).
			Msg("Volatility spike detected")
	}

	return spike
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
