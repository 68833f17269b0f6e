package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractRejectsEmptyFile(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract(context.Background(), "empty.pdf", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestExtractRejectsNonPDFBytes(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract(context.Background(), "fake.pdf", []byte("this is not a pdf"))

	assert.Error(t, err)
}
