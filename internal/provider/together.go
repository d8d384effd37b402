package provider

var togetherVirtuals = map[string]string{
	"auto":    "meta-llama/Llama-3.1-8B-Instruct-Turbo",
	"fast":    "meta-llama/Llama-3.1-8B-Instruct-Turbo",
	"cheap":   "meta-llama/Llama-3.1-8B-Instruct-Turbo",
	"quality": "meta-llama/Llama-3.1-70B-Instruct-Turbo",
}

var togetherDefaultModels = []string{
	"meta-llama/Llama-3.1-8B-Instruct-Turbo",
	"meta-llama/Llama-3.1-70B-Instruct-Turbo",
	"mistralai/Mixtral-8x7B-Instruct-v0.1",
}

// NewTogether builds the Together AI adapter (OpenAI-compatible wire shape).
func NewTogether(baseURL, apiKey string) Adapter {
	return newOpenAICompatible("together", baseURL, apiKey, togetherDefaultModels, togetherVirtuals)
}
