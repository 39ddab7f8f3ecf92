package observability

import (
	"strconv"
	"strings"
)

// Pricing constants
const (
	costFormatPrecision = 6

	// Flat per-turn estimates in USD, used when the CLI omits
	// cost_usd from its turn.completed stats. A jam turn is one
	// short prompt and one short JSON reply, so a flat figure per
	// model family is close enough for the ledger.
	gpt5TurnEstimate     = 0.004
	gpt5MiniTurnEstimate = 0.001
	o3TurnEstimate       = 0.008
	claudeTurnEstimate   = 0.006
	geminiTurnEstimate   = 0.002
	defaultTurnEstimate  = 0.004
)

// turnEstimates maps a model-name prefix to a flat per-turn estimate.
// Longer prefixes are checked first so gpt-5-mini wins over gpt-5.
var turnEstimates = []struct {
	prefix string
	usd    float64
}{
	{"gpt-5-mini", gpt5MiniTurnEstimate},
	{"gpt-5", gpt5TurnEstimate},
	{"o3", o3TurnEstimate},
	{"o4", o3TurnEstimate},
	{"claude-", claudeTurnEstimate},
	{"gemini-", geminiTurnEstimate},
}

// CostForTurn returns the reported cost when the CLI provided one,
// otherwise a flat per-model estimate.
func CostForTurn(model string, reportedUSD float64) float64 {
	if reportedUSD > 0 {
		return reportedUSD
	}
	for _, e := range turnEstimates {
		if strings.HasPrefix(model, e.prefix) {
			return e.usd
		}
	}
	return defaultTurnEstimate
}

// FormatCost formats a cost value as a USD string
func FormatCost(cost float64) string {
	return "$" + strconv.FormatFloat(cost, 'f', costFormatPrecision, 64)
}
