package rag

import (
	"fmt"
	"strings"
)

// answerMarker separates the model's answer from the echoed prompt. Extraction
// takes the text after its last occurrence, since the prompt itself ends with
// the marker and the model may repeat it.
const answerMarker = "Answer:"

const rolePreamble = "You are a helpful customer support assistant. " +
	"Use the following past support replies as context when answering the customer's question."

// BuildPrompt assembles the fixed generation template from the retrieved
// context block and the new question.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf("%s\n\nContext:\n%s\n\nQuestion: %s\n%s", rolePreamble, context, question, answerMarker)
}

// ExtractAnswer returns the text after the last answer marker in raw. When
// the marker is absent the full raw output is returned rather than failing
// silently or dropping the generation.
func ExtractAnswer(raw string) string {
	idx := strings.LastIndex(raw, answerMarker)
	if idx < 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[idx+len(answerMarker):])
}
