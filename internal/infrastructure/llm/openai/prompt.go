package openai

import (
	"github.com/kirillkom/care-records/internal/core/domain"
)

// maxInputRunes bounds the document text sent to the model.
const maxInputRunes = 10000

const (
	standardInstruction = "Summarize the following medical document in a concise way. " +
		"Keep the key findings, dates, medications and follow-up actions.\n\n"
	simpleInstruction = "Summarize the following medical document for a reader who has trouble " +
		"with memory or reading. Use very simple words and short sentences. " +
		"Say only what matters most and what the reader should do next.\n\n"
)

func buildSummaryPrompt(text string, audience domain.AudienceMode) string {
	instruction := standardInstruction
	if audience == domain.AudienceSimple {
		instruction = simpleInstruction
	}
	return instruction + truncateRunes(text, maxInputRunes)
}

func truncateRunes(text string, limit int) string {
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
