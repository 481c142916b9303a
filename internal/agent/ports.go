package agent

import (
	"context"

	"github.com/suPer8Hu/agent-portal/internal/ai"
	"github.com/suPer8Hu/agent-portal/internal/gdocs"
)

type Completer interface {
	Generate(ctx context.Context, messages []ai.Message, opts ai.Options) (ai.Completion, error)
}

type ChatSender interface {
	Send(ctx context.Context, channel, text, threadTS string) (string, error)
}

type DocumentCreator interface {
	Create(ctx context.Context, title, content string) (gdocs.Document, error)
}

// Adapters are the vendor clients configured for one user. Any field may be
// nil when the user has not stored that credential.
type Adapters struct {
	Completion Completer
	Chat       ChatSender
	Docs       DocumentCreator
}

// AdapterFactory builds a user's adapters from their stored credentials.
type AdapterFactory interface {
	Adapters(ctx context.Context, userID uint64) (Adapters, error)
}
