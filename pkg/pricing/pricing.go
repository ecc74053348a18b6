// Package pricing holds the static per-model USD pricing table and the
// cost formula shared by the Cost Tracker and Rate Limiter usage paths.
package pricing

import "math"

// ModelPrice is the $/M-token rate pair for one model.
type ModelPrice struct {
	InputUSDPerM  float64
	OutputUSDPerM float64
}

// Table is the built-in pricing table. Callers needing a custom or
// extended table can build their own map with the same shape.
var Table = map[string]ModelPrice{
	"zai:glm-4.5":                  {InputUSDPerM: 0.55, OutputUSDPerM: 2.19},
	"zai:glm-5":                    {InputUSDPerM: 0.95, OutputUSDPerM: 3.79},
	"anthropic:claude-haiku-4-5":   {InputUSDPerM: 0.80, OutputUSDPerM: 4.00},
	"anthropic:claude-sonnet-4-6":  {InputUSDPerM: 3.00, OutputUSDPerM: 15.00},
	"anthropic:claude-opus-4-6":    {InputUSDPerM: 5.00, OutputUSDPerM: 25.00},
}

// Calculate returns the USD cost of an (inputTokens, outputTokens) call
// against model, rounded to 8 decimal places. Unknown models price at 0,
// since the Model Router is responsible for only selecting catalogued
// models; a caller that hits an unpriced model should log it, not crash.
func Calculate(model string, inputTokens, outputTokens int64) float64 {
	price, ok := Table[model]
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1e6*price.InputUSDPerM + float64(outputTokens)/1e6*price.OutputUSDPerM
	return round8(cost)
}

func round8(v float64) float64 {
	const factor = 1e8
	return math.Round(v*factor) / factor
}
