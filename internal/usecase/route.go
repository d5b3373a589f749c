package usecase

import (
	"fmt"
	"strings"

	"chat-gateway/internal/domain"
)

// DefaultSystemContent is prepended when a request carries a single message.
const DefaultSystemContent = "Any default instructions for your model go here."

// Classification selects how caller messages are split into the system and
// user segments of the forwarded transcript.
type Classification string

const (
	// ClassifyAsBuilt routes every caller message into the system segment
	// and rewrites its role to "system". This matches the deployed service.
	ClassifyAsBuilt Classification = "as-built"
	// ClassifyByRole routes only messages whose role is literally "system"
	// into the system segment.
	ClassifyByRole Classification = "role"
)

// ParseClassification maps a configuration value onto a Classification.
// The empty string selects ClassifyAsBuilt.
func ParseClassification(s string) (Classification, error) {
	switch Classification(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClassifyAsBuilt:
		return ClassifyAsBuilt, nil
	case ClassifyByRole:
		return ClassifyByRole, nil
	default:
		return "", fmt.Errorf("usecase: unknown classification %q", s)
	}
}

// Route builds the transcript forwarded upstream: system messages first,
// then user messages, each in input order. The input slice is not modified.
func Route(messages []domain.ChatMessage, mode Classification, defaultSystem string) []domain.ChatMessage {
	system := make([]domain.ChatMessage, 0, len(messages)+1)
	var user []domain.ChatMessage

	if len(messages) == 1 {
		system = append(system, domain.ChatMessage{Role: domain.RoleSystem, Content: defaultSystem})
	}

	for _, m := range messages {
		switch mode {
		case ClassifyByRole:
			if m.Role == domain.RoleSystem {
				system = append(system, m)
			} else {
				user = append(user, m)
			}
		default:
			m.Role = domain.RoleSystem
			system = append(system, m)
		}
	}

	return append(system, user...)
}
