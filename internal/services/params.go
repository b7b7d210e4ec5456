package services

// LLMParameters are the sampling parameters sent with every request. Nil fields are left to the
// provider's defaults. Providers ignore parameters they don't support.
type LLMParameters struct {
	Temperature *float32 `yaml:"temperature"`
	TopK        *int     `yaml:"topK"`
	TopP        *float32 `yaml:"topP"`
}

// DefaultLLMParameters returns the sampling parameters tuned for the persona: creative while
// staying professional.
func DefaultLLMParameters() LLMParameters {
	temperature := float32(0.8)
	topK := 64
	topP := float32(0.95)
	return LLMParameters{
		Temperature: &temperature,
		TopK:        &topK,
		TopP:        &topP,
	}
}

// WithDefaults fills unset fields from DefaultLLMParameters.
func (p LLMParameters) WithDefaults() LLMParameters {
	d := DefaultLLMParameters()
	if p.Temperature == nil {
		p.Temperature = d.Temperature
	}
	if p.TopK == nil {
		p.TopK = d.TopK
	}
	if p.TopP == nil {
		p.TopP = d.TopP
	}
	return p
}
