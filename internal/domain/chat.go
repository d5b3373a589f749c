package domain

// RoleSystem is the role carried by behavioural instructions.
const RoleSystem = "system"

// ChatMessage is the provider-agnostic chat message shape used by the
// transports and inference integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound body of the chat-completion route.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// CompletionRequest is what gets forwarded to the inference collaborator.
type CompletionRequest struct {
	Model     string
	Provider  string
	MaxTokens int
	Messages  []ChatMessage
}
