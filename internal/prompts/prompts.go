// Package prompts holds the prompt templates sent to the LLM. Keeping
// them in one place makes prompt review and iteration easier than
// scattering string literals through the agent code.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// systemTemplate is the agent's base system prompt. The format verb is
// the current date line.
const systemTemplate = `You are Valet, a personal assistant. You help the user manage
their task list and stay on top of their calendar.

You have tools for creating, listing, completing, and deleting tasks,
and for reading upcoming calendar events. Use them when the user's
request calls for it; do not invent task or event data.

Be concise. Answer in plain text unless the user asks otherwise.

Current date: %s`

// System returns the interpolated system prompt for the given time.
func System(now time.Time) string {
	return fmt.Sprintf(systemTemplate, now.Format("Monday, January 2, 2006"))
}

// summaryTemplate is the prompt sent to the LLM to compress older
// conversation history. The single format verb is the flattened
// transcript.
const summaryTemplate = `Summarize this conversation concisely. Focus on:
1. Key topics discussed
2. Decisions made or preferences expressed
3. Actions taken (tasks created or completed, calendar lookups)
4. Any open items or things to remember

Keep the summary under 500 words. Use bullet points.

Conversation:
%s

Summary:`

// Summary returns the summarization prompt for a flattened transcript.
func Summary(transcript string) string {
	return fmt.Sprintf(summaryTemplate, transcript)
}

// SummaryMarker prefixes the synthetic message that replaces compressed
// history, so both the model and a human reading the transcript can
// tell it apart from a real user message.
const SummaryMarker = "[Conversation summary — earlier messages were compressed]"

// WrapSummary renders the synthetic summary message content.
func WrapSummary(summary string, originalCount int) string {
	var sb strings.Builder
	sb.WriteString(SummaryMarker)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Messages compressed: %d\n\n", originalCount))
	sb.WriteString(summary)
	return sb.String()
}

// debriefTemplate asks the agent for a daily debrief. Verbs: task list
// block, calendar block.
const debriefTemplate = `Give me a daily debrief. Here is my current state:

Open tasks:
%s

Today's calendar:
%s

Summarize what needs attention today, flag anything overdue, and keep
it under 200 words.`

// Debrief returns the daily-debrief user prompt.
func Debrief(taskBlock, calendarBlock string) string {
	return fmt.Sprintf(debriefTemplate, taskBlock, calendarBlock)
}
