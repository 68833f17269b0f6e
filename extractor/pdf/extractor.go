package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/w-h-a/pdfrag/extractor"
)

type pdfExtractor struct{}

func (e *pdfExtractor) Extract(ctx context.Context, filename string, content []byte) (extractor.Document, error) {
	if len(content) == 0 {
		return extractor.Document{}, fmt.Errorf("file %s is empty", filename)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return extractor.Document{}, fmt.Errorf("failed to open %s as pdf: %w", filename, err)
	}

	pageCount := reader.NumPage()

	var b strings.Builder

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// tolerate a bad page; the document fails below if nothing is readable
			continue
		}

		b.WriteString(text)
		b.WriteString("\n")
	}

	text := b.String()
	if len(strings.TrimSpace(text)) == 0 {
		return extractor.Document{}, fmt.Errorf("no extractable text in %s", filename)
	}

	return extractor.Document{
		Id:        uuid.New().String(),
		Filename:  filename,
		PageCount: pageCount,
		Text:      text,
	}, nil
}

func NewExtractor() extractor.Extractor {
	return &pdfExtractor{}
}
