package llm

import "strings"

// Strategy selects a provider family without naming a vendor.
type Strategy string

const (
	// StrategyLocal runs models on a local Ollama server.
	StrategyLocal Strategy = "local"
	// StrategyCloudA uses Google Gemini.
	StrategyCloudA Strategy = "cloud-a"
	// StrategyCloudB uses an OpenAI-compatible endpoint (Groq by default).
	StrategyCloudB Strategy = "cloud-b"
)

var strategyProviders = map[Strategy]string{
	StrategyLocal:  "ollama",
	StrategyCloudA: "gemini",
	StrategyCloudB: "openai",
}

// Strategies returns the supported strategy names.
func Strategies() []Strategy {
	return []Strategy{StrategyLocal, StrategyCloudA, StrategyCloudB}
}

// Resolve maps a strategy to its concrete provider name.
// Anything that is not a strategy is returned unchanged, so concrete
// provider names such as "ollama" pass straight through.
func Resolve(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if p, ok := strategyProviders[Strategy(n)]; ok {
		return p
	}
	return n
}
