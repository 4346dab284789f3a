package risk

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// PositionContribution is one position's share of the portfolio risk proxy.
type PositionContribution struct {
	Symbol           string  `json:"symbol"`
	AbsoluteRisk     float64 `json:"absolute_risk"`
	RiskContribution float64 `json:"risk_contribution"`
}

// SectorContribution is one sector's share of the portfolio risk proxy.
type SectorContribution struct {
	Sector           string  `json:"sector"`
	AbsoluteRisk     float64 `json:"absolute_risk"`
	RiskContribution float64 `json:"risk_contribution"`
}

// PositionRiskReport decomposes portfolio risk by position.
type PositionRiskReport struct {
	TotalPortfolioRisk    float64                `json:"total_portfolio_risk"`
	PositionContributions []PositionContribution `json:"position_contributions"`
	TopRiskContributor    string                 `json:"top_risk_contributor,omitempty"`
}

// RiskAttributionAnalyzer decomposes portfolio risk into position and sector contributions.
//
// The per-position risk is the proxy |value| * volatility. It ignores cross-correlation and is
// not a decomposition of the confidence-level VaR computed by VaRCalculator.
type RiskAttributionAnalyzer struct {
	log zerolog.Logger
}

// NewRiskAttributionAnalyzer creates an analyzer.
func NewRiskAttributionAnalyzer(log zerolog.Logger) *RiskAttributionAnalyzer {
	return &RiskAttributionAnalyzer{
		log: log.With().Str("component", "risk_attribution").Logger(),
	}
}

func positionRisk(p Position) float64 {
	return math.Abs(p.ValueFloat()) * p.Volatility
}

// AnalyzePositionRisk reports each position's percentage of total risk, largest first.
func (a *RiskAttributionAnalyzer) AnalyzePositionRisk(positions []Position) PositionRiskReport {
	report := PositionRiskReport{
		PositionContributions: make([]PositionContribution, 0, len(positions)),
	}

	for _, p := range positions {
		report.TotalPortfolioRisk += positionRisk(p)
	}

	for _, p := range positions {
		risk := positionRisk(p)
		contribution := 0.0
		if report.TotalPortfolioRisk > 0 {
			contribution = risk / report.TotalPortfolioRisk * 100
		}
		report.PositionContributions = append(report.PositionContributions, PositionContribution{
			Symbol:           p.Symbol,
			AbsoluteRisk:     risk,
			RiskContribution: contribution,
		})
	}

	sort.SliceStable(report.PositionContributions, func(i, j int) bool {
		ci, cj := report.PositionContributions[i], report.PositionContributions[j]
		if ci.AbsoluteRisk != cj.AbsoluteRisk {
			return ci.AbsoluteRisk > cj.AbsoluteRisk
		}
		return ci.Symbol < cj.Symbol
	})

	if len(report.PositionContributions) > 0 {
		report.TopRiskContributor = report.PositionContributions[0].Symbol
	}

	return report
}

// AnalyzeSectorRisk aggregates the risk proxy by sector, largest first.
// Positions without a sector fall under UnknownSector.
func (a *RiskAttributionAnalyzer) AnalyzeSectorRisk(positions []Position) []SectorContribution {
	bySector := make(map[string]float64)
	total := 0.0
	for _, p := range positions {
		risk := positionRisk(p)
		bySector[p.SectorOrUnknown()] += risk
		total += risk
	}

	sectors := make([]SectorContribution, 0, len(bySector))
	for sector, risk := range bySector {
		contribution := 0.0
		if total > 0 {
			contribution = risk / total * 100
		}
		sectors = append(sectors, SectorContribution{
			Sector:           sector,
			AbsoluteRisk:     risk,
			RiskContribution: contribution,
		})
	}

	sort.Slice(sectors, func(i, j int) bool {
		if sectors[i].AbsoluteRisk != sectors[j].AbsoluteRisk {
			return sectors[i].AbsoluteRisk > sectors[j].AbsoluteRisk
		}
		return sectors[i].Sector < sectors[j].Sector
	})

	return sectors
}

// WeightedVolatility is the |value|-weighted average of position volatilities.
func WeightedVolatility(positions []Position) float64 {
	totalValue := 0.0
	weighted := 0.0
	for _, p := range positions {
		v := math.Abs(p.ValueFloat())
		totalValue += v
		weighted += v * p.Volatility
	}
	if totalValue == 0 {
		return 0
	}
	return weighted / totalValue
}

// VolatilityRiskProxy is |portfolio value| * weighted volatility.
func VolatilityRiskProxy(positions []Position) float64 {
	return math.Abs(TotalValue(positions).InexactFloat64()) * WeightedVolatility(positions)
}

// CalculateMarginalVaR returns the change in VolatilityRiskProxy from holding targetSymbol.
// It is a volatility proxy, not a confidence-level VaR. An absent symbol contributes 0.
func (a *RiskAttributionAnalyzer) CalculateMarginalVaR(positions []Position, targetSymbol string) float64 {
	without := make([]Position, 0, len(positions))
	found := false
	for _, p := range positions {
		if p.Symbol == targetSymbol {
			found = true
			continue
		}
		without = append(without, p)
	}

	if !found {
		a.log.Debug().Str("symbol", targetSymbol).Msg("Marginal VaR requested for symbol not in portfolio")
		return 0.0
	}

	return VolatilityRiskProxy(positions) - VolatilityRiskProxy(without)
}
