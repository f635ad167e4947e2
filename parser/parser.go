// Package parser defines the document parser boundary: raw bytes in,
// ordered plain-text sections with positional metadata out.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"legalqa-backend/models"
)

// ErrUnsupportedFormat is returned for file types the parser cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Parser extracts ordered text sections from a raw document.
type Parser interface {
	Parse(ctx context.Context, filename string, r io.Reader) ([]models.Section, error)
}

// PlainTextParser handles .txt and .md files. Form feeds mark page breaks;
// each page becomes one section carrying a "page" metadata key.
type PlainTextParser struct{}

// NewPlainText creates a plain-text parser.
func NewPlainText() *PlainTextParser {
	return &PlainTextParser{}
}

// Parse reads the document and splits it into page sections.
func (p *PlainTextParser) Parse(ctx context.Context, filename string, r io.Reader) ([]models.Section, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".txt" && ext != ".md" && ext != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	pages := strings.Split(string(data), "\f")
	sections := make([]models.Section, 0, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		sections = append(sections, models.Section{
			Text: page,
			Metadata: map[string]interface{}{
				"page": i + 1,
			},
		})
	}

	return sections, nil
}
