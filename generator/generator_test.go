package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptNumbersContextBlocks(t *testing.T) {
	prompt := BuildPrompt("what is the capital of france?", []string{
		"france is a country in europe",
		"paris is the capital of france",
	})

	assert.Contains(t, prompt, "Context 1:\nfrance is a country in europe")
	assert.Contains(t, prompt, "Context 2:\nparis is the capital of france")
	assert.True(t, strings.HasSuffix(prompt, "Question: what is the capital of france?"))
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := BuildPrompt("anything?", nil)

	assert.Contains(t, prompt, "No context documents are available.")
	assert.NotContains(t, prompt, "Context 1:")
	assert.True(t, strings.HasSuffix(prompt, "Question: anything?"))
}
