package assistant

import (
	"strings"

	"github.com/chirino/ufdr-service/internal/model"
)

// DefaultHistoryTurns is how many earlier messages the prompt repeats.
const DefaultHistoryTurns = 10

const promptPreamble = `You are a digital forensic analyst assistant. Be precise, concise and structured.

The following are artifacts extracted from a UFDR file (mobile device extraction).
Use them to answer the investigator's question as accurately and concisely as possible.`

const promptInstructions = `Instructions:
- Summarize findings clearly.
- List call or message data in structured bullet points if applicable.
- If data isn't sufficient, explicitly say so.`

// BuildPrompt renders the model prompt. history holds the messages before the
// current question; only the last historyTurns of them are included.
func BuildPrompt(question, context string, history []model.Message, historyTurns int) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.TrimRight(context, "\n"))
	b.WriteString("\n")

	if historyTurns > 0 && len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if historyTurns > 0 && len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			b.WriteString(speaker(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	b.WriteString("\n")
	return b.String()
}

func speaker(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	default:
		r := string(role)
		if r == "" {
			return "Unknown"
		}
		return strings.ToUpper(r[:1]) + r[1:]
	}
}

// Transcript renders every message as "role: text", one per line.
func Transcript(messages []model.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = string(m.Role) + ": " + m.Text
	}
	return strings.Join(lines, "\n")
}
