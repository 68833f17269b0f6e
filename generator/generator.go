package generator

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces an answer to a question given retrieved context texts.
// It is an external collaborator: what the model says with empty context is
// its own contract.
type Generator interface {
	Generate(ctx context.Context, question string, contextTexts []string) (string, error)
}

// BuildPrompt assembles the retrieval-augmented prompt shared by all
// providers: numbered context blocks followed by the question.
func BuildPrompt(question string, contextTexts []string) string {
	var b strings.Builder

	if len(contextTexts) == 0 {
		b.WriteString("No context documents are available.\n\n")
	} else {
		b.WriteString("Use the following context to answer the question. If the context does not contain the answer, say so.\n\n")
		for i, text := range contextTexts {
			b.WriteString(fmt.Sprintf("Context %d:\n%s\n\n", i+1, text))
		}
	}

	b.WriteString("Question: ")
	b.WriteString(question)

	return b.String()
}
