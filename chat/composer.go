package chat

import (
	"fmt"
	"strings"

	"github.com/fabfab/doc-chat/fault"
	"github.com/fabfab/doc-chat/llm"
)

const systemPreamble = "You are a helpful assistant. Answer the user's question based on the " +
	"following context from their document. If the answer is not in the context, say so politely."

const (
	contextHeader    = "\n\nContext:\n"
	passageSeparator = "\n\n"
)

// BuildPrompt assembles the message sequence for the generation call. The
// total prompt is capped at maxChars, scaffolding included; passages are
// dropped lowest-ranked first until the prompt fits. ErrContextTooLarge is
// returned only when even a prompt with zero passages exceeds the cap, which
// signals a configuration bug rather than an oversized document.
func BuildPrompt(question string, passages []Passage, history []llm.Message, maxChars int) ([]llm.Message, error) {
	fixed := len(systemPreamble) + len(question)
	for _, msg := range history {
		fixed += len(msg.Content)
	}
	if fixed > maxChars {
		return nil, fmt.Errorf("prompt is %d characters with no context against a limit of %d: %w",
			fixed, maxChars, fault.ErrContextTooLarge)
	}

	budget := maxChars - fixed
	kept := make([]Passage, 0, len(passages))
	for _, passage := range passages {
		cost := len(passage.Content) + len(passageSeparator)
		if len(kept) == 0 {
			cost = len(passage.Content) + len(contextHeader)
		}
		if cost > budget {
			break
		}
		kept = append(kept, passage)
		budget -= cost
	}

	var sb strings.Builder
	sb.WriteString(systemPreamble)
	if len(kept) > 0 {
		sb.WriteString(contextHeader)
		for i, passage := range kept {
			if i > 0 {
				sb.WriteString(passageSeparator)
			}
			sb.WriteString(passage.Content)
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})
	return messages, nil
}
