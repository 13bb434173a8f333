package riskgate

import (
	"fmt"
	"math"
	"sort"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/logging"
	"ai-trading-agent/internal/platform"
)

// Rule identifies which validation rule produced a verdict.
type Rule string

const (
	RuleNone          Rule = "none"
	RuleSizing        Rule = "sizing"
	RuleConcentration Rule = "concentration"
	RuleCorrelation   Rule = "correlation"
	RuleVaR           Rule = "var"
	RuleDrawdown      Rule = "drawdown"
)

// RuleResult records one rule's outcome. Every rule is evaluated even
// after a failure so the full picture is available for logging.
type RuleResult struct {
	Rule   Rule   `json:"rule"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is the gatekeeper's answer for one decision. AdjustedSize is
// the position size to execute with, after any correlation penalty;
// it equals the proposed size when no penalty applied.
type Verdict struct {
	Approved     bool         `json:"approved"`
	Rule         Rule         `json:"rule"` // first failing rule, RuleNone when approved
	Reason       string       `json:"reason"`
	AdjustedSize float64      `json:"adjusted_size"`
	Checks       []RuleResult `json:"checks,omitempty"`
}

// Input carries everything Validate needs. Returns holds per-asset
// return history for every open position plus the candidate asset; the
// gatekeeper itself performs no I/O to obtain it.
type Input struct {
	Decision *engine.Decision
	Snapshot *platform.PortfolioSnapshot
	Price    float64
	Size     float64 // proposed size in asset units
	Returns  map[string][]float64
}

// Gatekeeper validates decisions against the configured risk limits.
// It is stateless: Validate is a pure function of its input.
type Gatekeeper struct {
	cfg config.RiskConfig
}

func New(cfg config.RiskConfig) *Gatekeeper {
	return &Gatekeeper{cfg: cfg}
}

// SuggestSize derives a position size from the risk budget: the cash
// at risk is a fixed percentage of portfolio value, and the size is
// that amount divided by the per-unit stop distance.
func (g *Gatekeeper) SuggestSize(snapshot *platform.PortfolioSnapshot, price, stopLoss float64) float64 {
	if snapshot == nil || snapshot.TotalValue <= 0 || price <= 0 {
		return 0
	}
	riskAmount := snapshot.TotalValue * (g.cfg.RiskPerTradePct / 100)
	stopDistance := price * (g.cfg.StopLossPct / 100)
	if stopLoss > 0 && math.Abs(price-stopLoss) > 0 {
		stopDistance = math.Abs(price - stopLoss)
	}
	if stopDistance <= 0 {
		return 0
	}
	return riskAmount / stopDistance
}

// Validate checks a decision against the sizing, concentration,
// correlation, VaR and drawdown rules, in that order. The first
// failing rule is the reported reason, but all rules are evaluated.
// Risk-reducing actions (sell, close, hold) are approved without
// evaluation since they only shrink exposure.
func (g *Gatekeeper) Validate(in *Input) *Verdict {
	d := in.Decision
	if d.Action != engine.ActionBuy && d.Action != engine.ActionShort {
		return &Verdict{
			Approved:     true,
			Rule:         RuleNone,
			Reason:       fmt.Sprintf("%s reduces exposure, no risk evaluation needed", d.Action),
			AdjustedSize: in.Size,
		}
	}

	verdict := &Verdict{AdjustedSize: in.Size}
	fail := func(rule Rule, detail string) {
		verdict.Checks = append(verdict.Checks, RuleResult{Rule: rule, Passed: false, Detail: detail})
		if verdict.Rule == "" {
			verdict.Rule = rule
			verdict.Reason = detail
		}
	}
	pass := func(rule Rule, detail string) {
		verdict.Checks = append(verdict.Checks, RuleResult{Rule: rule, Passed: true, Detail: detail})
	}

	snapshot := in.Snapshot
	notional := in.Size * in.Price

	// 1. Sizing: the proposed position must fit the risk budget.
	maxSize := g.SuggestSize(snapshot, in.Price, d.StopLoss)
	if in.Size <= 0 {
		fail(RuleSizing, "proposed size is zero")
	} else if maxSize > 0 && in.Size > maxSize*1.0001 {
		fail(RuleSizing, fmt.Sprintf("size %.6f exceeds risk budget ceiling %.6f", in.Size, maxSize))
	} else {
		pass(RuleSizing, fmt.Sprintf("size %.6f within ceiling %.6f", in.Size, maxSize))
	}

	// 2. Concentration: existing plus new exposure in one asset.
	exposurePct := 0.0
	if snapshot != nil && snapshot.TotalValue > 0 {
		exposurePct = snapshot.ExposurePct(d.Asset) + notional/snapshot.TotalValue*100
	}
	if exposurePct > g.cfg.MaxConcentrationPct {
		fail(RuleConcentration, fmt.Sprintf("exposure %.2f%% exceeds concentration limit %.2f%%", exposurePct, g.cfg.MaxConcentrationPct))
	} else {
		pass(RuleConcentration, fmt.Sprintf("exposure %.2f%% within limit %.2f%%", exposurePct, g.cfg.MaxConcentrationPct))
	}

	// 3. Correlation: above-threshold correlation with an existing
	// position shrinks the size linearly, it does not reject.
	maxCorr, corrAsset := g.maxCorrelation(d.Asset, in)
	if maxCorr > g.cfg.CorrelationThreshold && g.cfg.CorrelationThreshold < 1 {
		excess := (maxCorr - g.cfg.CorrelationThreshold) / (1 - g.cfg.CorrelationThreshold)
		factor := 1 - g.cfg.CorrelationPenalty*excess
		if factor < 0 {
			factor = 0
		}
		verdict.AdjustedSize = in.Size * factor
		if verdict.AdjustedSize <= 0 {
			fail(RuleCorrelation, fmt.Sprintf("correlation %.2f with %s reduces size to zero", maxCorr, corrAsset))
		} else {
			pass(RuleCorrelation, fmt.Sprintf("correlation %.2f with %s, size reduced to %.6f", maxCorr, corrAsset, verdict.AdjustedSize))
		}
	} else {
		pass(RuleCorrelation, fmt.Sprintf("max correlation %.2f below threshold %.2f", maxCorr, g.cfg.CorrelationThreshold))
	}

	// 4. Value-at-Risk: estimated from supplied return history. A held
	// asset without enough history rejects outright, it never passes
	// on partial information.
	varPct, gapAsset, err := g.portfolioVaR(in, verdict.AdjustedSize)
	switch {
	case err != nil:
		fail(RuleVaR, fmt.Sprintf("insufficient-data: %s lacks return history (%v)", gapAsset, err))
	case varPct > g.cfg.VaRLimitPct:
		fail(RuleVaR, fmt.Sprintf("estimated VaR %.2f%% exceeds limit %.2f%%", varPct, g.cfg.VaRLimitPct))
	default:
		pass(RuleVaR, fmt.Sprintf("estimated VaR %.2f%% within limit %.2f%%", varPct, g.cfg.VaRLimitPct))
	}

	// 5. Drawdown: relative to the run's peak value, never an
	// absolute-currency comparison.
	if snapshot != nil && snapshot.PeakValue > 0 {
		drawdownPct := (snapshot.PeakValue - snapshot.TotalValue) / snapshot.PeakValue * 100
		if drawdownPct > g.cfg.MaxDrawdownPct {
			fail(RuleDrawdown, fmt.Sprintf("drawdown %.2f%% from peak exceeds limit %.2f%%", drawdownPct, g.cfg.MaxDrawdownPct))
		} else {
			pass(RuleDrawdown, fmt.Sprintf("drawdown %.2f%% within limit %.2f%%", drawdownPct, g.cfg.MaxDrawdownPct))
		}
	} else {
		pass(RuleDrawdown, "no peak recorded yet")
	}

	if verdict.Rule == "" {
		verdict.Approved = true
		verdict.Rule = RuleNone
		verdict.Reason = "all risk checks passed"
	}
	logging.RiskContext(d.Asset, string(verdict.Rule), verdict.Approved).Debug("Risk verdict", "reason", verdict.Reason)
	return verdict
}

// maxCorrelation returns the highest trailing correlation between the
// candidate asset and any currently held asset. Pairs without enough
// overlapping history contribute nothing; the VaR rule is the one that
// polices history gaps.
func (g *Gatekeeper) maxCorrelation(asset string, in *Input) (float64, string) {
	candidate := in.Returns[asset]
	if len(candidate) < g.cfg.MinReturnHistory || in.Snapshot == nil {
		return 0, ""
	}
	var maxCorr float64
	var maxAsset string
	for i := range in.Snapshot.Positions {
		held := in.Snapshot.Positions[i].Symbol
		if held == asset {
			continue
		}
		series := in.Returns[held]
		if len(series) < g.cfg.MinReturnHistory {
			continue
		}
		corr := pearson(candidate, series)
		if corr > maxCorr {
			maxCorr = corr
			maxAsset = held
		}
	}
	return maxCorr, maxAsset
}

// portfolioVaR estimates the post-trade portfolio VaR as a percentage
// of portfolio value, using the historical distribution of the
// value-weighted return series. Returns the first held asset missing
// history as gapAsset with a non-nil error.
func (g *Gatekeeper) portfolioVaR(in *Input, size float64) (varPct float64, gapAsset string, err error) {
	snapshot := in.Snapshot
	if snapshot == nil || snapshot.TotalValue <= 0 {
		return 0, in.Decision.Asset, fmt.Errorf("no portfolio snapshot")
	}

	type holding struct {
		asset string
		value float64
	}
	holdings := make([]holding, 0, len(snapshot.Positions)+1)
	for i := range snapshot.Positions {
		p := &snapshot.Positions[i]
		holdings = append(holdings, holding{asset: p.Symbol, value: p.Value()})
	}
	holdings = append(holdings, holding{asset: in.Decision.Asset, value: size * in.Price})

	window := math.MaxInt32
	for _, h := range holdings {
		series := in.Returns[h.asset]
		if len(series) < g.cfg.MinReturnHistory {
			return 0, h.asset, fmt.Errorf("%d returns, need %d", len(series), g.cfg.MinReturnHistory)
		}
		if len(series) < window {
			window = len(series)
		}
	}

	total := snapshot.TotalValue + size*in.Price
	combined := make([]float64, window)
	for _, h := range holdings {
		series := in.Returns[h.asset]
		weight := h.value / total
		// Align on the most recent observations
		offset := len(series) - window
		for i := 0; i < window; i++ {
			combined[i] += weight * series[offset+i]
		}
	}

	sort.Float64s(combined)
	idx := int(math.Floor((1 - g.cfg.VaRConfidence) * float64(window)))
	if idx >= window {
		idx = window - 1
	}
	loss := -combined[idx]
	if loss < 0 {
		loss = 0
	}
	return loss * 100, "", nil
}

// pearson computes the correlation coefficient over the overlapping
// tail of two return series.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
