package ai

import "strings"

// DefaultSystemPrompt is sent when the caller supplies none. It refers to
// the sentinel the extractor embeds in the page markdown.
const DefaultSystemPrompt = `You are a social media comment assistant. Based on the provided web page content (Markdown format), write a short, witty and insightful comment for the position marked [HERE_IS_THE_INPUT_BOX_I_WANT_TO_GENERATE_FOR]. Make sure the comment is closely related to the page topic and to the context around that position, and avoid empty boilerplate.`

const fallbackSystemPrompt = "You are a helpful assistant."

const noPersona = "No preset prompts provided."

// PromptParts are the pieces combined into the single prompt sent upstream.
type PromptParts struct {
	System       string
	Persona      string
	PageMarkdown string
	CurrentValue string
}

// BuildPrompt composes the single free-form prompt sent to the provider.
func BuildPrompt(p PromptParts) string {
	system := strings.TrimSpace(p.System)
	if system == "" {
		system = fallbackSystemPrompt
	}
	persona := strings.TrimSpace(p.Persona)
	if persona == "" {
		persona = noPersona
	}

	var sb strings.Builder
	sb.WriteString("System Prompt:\n")
	sb.WriteString(system)
	sb.WriteString("\n\nPreset User Preferences:\n")
	sb.WriteString(persona)
	sb.WriteString("\n\nCurrent Page Content (Markdown):\n")
	sb.WriteString(p.PageMarkdown)
	sb.WriteString("\n\nCurrent Input Value (if any):\n")
	sb.WriteString(p.CurrentValue)
	sb.WriteString("\n\nTask: Please generate a concise and appropriate reply based on the above context and system prompt.")
	return sb.String()
}
