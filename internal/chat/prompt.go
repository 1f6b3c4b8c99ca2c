package chat

import (
	"strings"

	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/provider"
)

const systemPrompt = `You are a helpful assistant that answers questions using the web sources provided with each question.

Follow these rules:
1. Format every answer in markdown.
2. Cite the source of every claim inline as [Source Name](URL), using the URLs given to you.
3. End the answer with a "References" section listing each source you cited.
4. When the sources do not cover part of the question, or a source could not be loaded, say so plainly instead of guessing.
5. Keep a natural, conversational tone.`

// Prompt is the input of a single completion.
type Prompt struct {
	System  string
	History []provider.Message
	User    string
}

// BuildPrompt assembles the completion input. It has no side effects.
func BuildPrompt(message string, history []models.Message, contents []models.ScrapedContent) Prompt {
	return Prompt{
		System:  systemPrompt,
		History: historyMessages(history),
		User:    userContent(message, contents),
	}
}

// ChatMessages returns the system prompt, the history and the user turn.
func (p Prompt) ChatMessages() []provider.Message {
	out := make([]provider.Message, 0, len(p.History)+2)
	out = append(out, provider.Message{Role: provider.RoleSystem, Content: p.System})
	out = append(out, p.History...)
	return append(out, provider.Message{Role: provider.RoleUser, Content: p.User})
}

func historyMessages(history []models.Message) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleAI:
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		case models.RoleUser:
			out = append(out, provider.Message{Role: provider.RoleUser, Content: m.Content})
		}
	}
	return out
}

func userContent(message string, contents []models.ScrapedContent) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(message)
	if len(contents) == 0 {
		return b.String()
	}
	b.WriteString("\n\nSources:")
	for _, c := range contents {
		b.WriteString("\n\nURL: ")
		b.WriteString(c.URL)
		if c.Failed() {
			b.WriteString("\nError: ")
			b.WriteString(*c.Error)
			continue
		}
		b.WriteString("\nTitle: ")
		b.WriteString(c.Title)
		b.WriteString("\nDescription: ")
		b.WriteString(c.MetaDescription)
		b.WriteString("\nContent: ")
		b.WriteString(c.Content)
	}
	return b.String()
}
