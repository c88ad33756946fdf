package llm

// Price is the USD cost per one million tokens of a model.
type Price struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// PriceTable maps model names to prices.
type PriceTable map[string]Price

// ModelCost is one line of a cost breakdown.
type ModelCost struct {
	Model      string  `json:"model"`
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	Cost       float64 `json:"cost"`
}

// Cost prices usage per model, in sorted model order, and returns the total.
// Models missing from the table cost zero.
func (t PriceTable) Cost(usage Usage) ([]ModelCost, float64) {
	models := usage.Models()
	list := make([]ModelCost, 0, len(models))
	total := 0.0
	for _, model := range models {
		m := usage[model]
		p := t[model]
		in := float64(m.InputTokens) * p.InputPerMillion / 1e6
		out := float64(m.OutputTokens) * p.OutputPerMillion / 1e6
		list = append(list, ModelCost{Model: model, InputCost: in, OutputCost: out, Cost: in + out})
		total += in + out
	}
	return list, total
}

// ResponseCost prices a single completion.
func (t PriceTable) ResponseCost(resp *ChatResponse) float64 {
	_, total := t.Cost(resp.ModelUsage())
	return total
}
