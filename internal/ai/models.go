package ai

// Model metadata for the Groq models offered in the model selector.
// Prices are illustrative and should be verified against Groq docs.

type ModelInfo struct {
	Name          string
	Label         string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

// supported keeps selector order.
var supported = []ModelInfo{
	{
		Name:          "llama3-70b-8192",
		Label:         "Llama 3 70B",
		ContextTokens: 8192,
		InputPerK:     0.00059,
		OutputPerK:    0.00079,
	},
	{
		Name:          "llama3-8b-8192",
		Label:         "Llama 3 8B",
		ContextTokens: 8192,
		InputPerK:     0.00005,
		OutputPerK:    0.00008,
	},
	{
		Name:          "mixtral-8x7b-32768",
		Label:         "Mixtral 8x7B",
		ContextTokens: 32768,
		InputPerK:     0.00024,
		OutputPerK:    0.00024,
	},
}

// SupportedModels returns the selectable models in display order.
func SupportedModels() []ModelInfo {
	out := make([]ModelInfo, len(supported))
	copy(out, supported)
	return out
}

// IsSupported reports whether name is one of the selectable models.
func IsSupported(name string) bool {
	_, ok := LookupModel(name)
	return ok
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	for _, mi := range supported {
		if mi.Name == name {
			return mi, true
		}
	}
	return ModelInfo{}, false
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}
