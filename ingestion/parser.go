package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/poiesic/docrag/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatHTML
	formatText
)

// Parser extracts pages from PDF, HTML and plain text files using
// langchaingo document loaders. PDFs yield one page per PDF page;
// HTML and text yield a single page.
type Parser struct{}

var _ DocumentParser = (*Parser)(nil)

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse detects the format from the URL extension, falling back to the
// file's leading bytes, and loads its text.
func (p *Parser) Parse(ctx context.Context, filePath, sourceURL string) ([]core.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceMissing, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	kind := formatFromURL(sourceURL)
	if kind == formatUnknown {
		head := make([]byte, 512)
		n, err := f.ReadAt(head, 0)
		if err != nil && err != io.EOF {
			return nil, err
		}
		kind = sniffFormat(head[:n])
	}

	var docs []schema.Document
	switch kind {
	case formatPDF:
		docs, err = documentloaders.NewPDF(f, info.Size()).Load(ctx)
	case formatHTML:
		docs, err = documentloaders.NewHTML(f).Load(ctx)
	case formatText:
		docs, err = documentloaders.NewText(f).Load(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, sourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sourceURL, err)
	}

	pages := make([]core.Page, 0, len(docs))
	for i, doc := range docs {
		pages = append(pages, core.Page{
			Number: pageNumber(doc, i+1),
			Text:   doc.PageContent,
		})
	}
	return pages, nil
}

func formatFromURL(raw string) format {
	u, err := url.Parse(raw)
	if err != nil {
		return formatUnknown
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".pdf":
		return formatPDF
	case ".html", ".htm":
		return formatHTML
	case ".txt", ".text", ".md", ".csv":
		return formatText
	}
	return formatUnknown
}

func sniffFormat(head []byte) format {
	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return formatPDF
	}
	contentType := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return formatPDF
	case strings.HasPrefix(contentType, "text/html"):
		return formatHTML
	case strings.HasPrefix(contentType, "text/"):
		return formatText
	}
	return formatUnknown
}

func pageNumber(doc schema.Document, fallback int) int {
	if doc.Metadata == nil {
		return fallback
	}
	if n, ok := doc.Metadata["page"].(int); ok && n > 0 {
		return n
	}
	return fallback
}
