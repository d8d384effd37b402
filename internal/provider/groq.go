package provider

var groqVirtuals = map[string]string{
	"auto":    "llama-3.1-8b-instant",
	"fast":    "llama-3.1-8b-instant",
	"cheap":   "llama-3.1-8b-instant",
	"quality": "llama-3.1-70b-versatile",
}

var groqDefaultModels = []string{
	"llama-3.1-8b-instant", "llama-3.1-70b-versatile", "mixtral-8x7b-32768",
}

// NewGroq builds the Groq adapter. Groq serves an OpenAI-compatible API
// with far lower completion latency, which is why the fallback chain's
// default per-provider timeout for it is shorter than the others.
func NewGroq(baseURL, apiKey string) Adapter {
	return newOpenAICompatible("groq", baseURL, apiKey, groqDefaultModels, groqVirtuals)
}
