package openai

import "context"

// Disabled returns a Client whose calls all fail with reason. It stands in
// when no API key is configured so processes that never call the model can
// still start.
func Disabled(reason error) Client { return disabledClient{reason: reason} }

type disabledClient struct{ reason error }

func (d disabledClient) GenerateJSON(context.Context, string, string) (map[string]any, error) {
	return nil, d.reason
}

func (d disabledClient) GenerateText(context.Context, string, string) (string, error) {
	return "", d.reason
}

func (disabledClient) Model() string { return "disabled" }
