package summarize

import (
	"fmt"
	"strings"

	"github.com/MimeLyc/docbrief/internal/pipeline"
)

const systemPrompt = `You are a narrator who turns written documents into engaging spoken-word briefings. Write in a natural, conversational register suited to being read aloud.`

const promptTemplate = `Summarize the documents below into a narrative briefing.

Requirements:
- Begin with a single short title line
- Follow with one introductory paragraph describing what the briefing covers
- Cover the main points of every document in the order given
- Write flowing prose, no bullet points, suitable for text-to-speech
%s
Documents:
---
%s
---`

// BuildPrompt assembles the user prompt. Listener context fields are
// forwarded verbatim, never interpreted.
func BuildPrompt(text string, listener pipeline.Context) string {
	var ctxSection string
	if !listener.IsZero() {
		var b strings.Builder
		b.WriteString("\nThe listener shared context to guide the briefing:\n")
		if listener.GuidingQuestion != "" {
			fmt.Fprintf(&b, "- Question they want explored: %s\n", listener.GuidingQuestion)
		}
		if listener.WantOthersToKnow != "" {
			fmt.Fprintf(&b, "- What they want others to know: %s\n", listener.WantOthersToKnow)
		}
		if listener.WhatInterestedMe != "" {
			fmt.Fprintf(&b, "- What interested them: %s\n", listener.WhatInterestedMe)
		}
		if listener.ConversationToStart != "" {
			fmt.Fprintf(&b, "- Conversation they hope to start: %s\n", listener.ConversationToStart)
		}
		ctxSection = b.String()
	}
	return fmt.Sprintf(promptTemplate, ctxSection, text)
}
