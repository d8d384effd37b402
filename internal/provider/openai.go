package provider

// openaiVirtuals resolves the gateway's virtual model names to concrete
// OpenAI model ids.
var openaiVirtuals = map[string]string{
	"auto":    "gpt-4o-mini",
	"fast":    "gpt-4o-mini",
	"cheap":   "gpt-4o-mini",
	"quality": "gpt-4o",
}

var openaiDefaultModels = []string{
	"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo",
}

// NewOpenAI builds the OpenAI adapter.
func NewOpenAI(baseURL, apiKey string) Adapter {
	return newOpenAICompatible("openai", baseURL, apiKey, openaiDefaultModels, openaiVirtuals)
}
