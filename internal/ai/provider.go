package ai

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call generation knobs. Zero values fall back to the
// vendor's defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Completion is one generated reply with its accounting.
type Completion struct {
	Text       string
	TokensUsed int
	LatencyMS  float64
	Model      string
}
