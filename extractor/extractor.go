package extractor

import "context"

// Document is the transient output of text extraction: consumed once by the
// chunker, then discarded apart from bookkeeping counts.
type Document struct {
	Id        string
	Filename  string
	PageCount int
	Text      string
}

// Extractor turns raw file bytes into a Document with plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (Document, error)
}
