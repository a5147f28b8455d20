// Package pdftext extracts plain text and annotation contents from PDF
// files mirrored out of the vault.
package pdftext

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the extracted content of one PDF.
type Document struct {
	Text        string   `json:"text"`
	Annotations []string `json:"annotations,omitempty"`
}

// Extract parses data as a PDF and returns its plain text plus the Contents
// entries of all page annotations. The underlying parser panics on some
// malformed files, so extraction recovers and reports those as errors.
func Extract(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("pdf parsing failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}

	return &Document{
		Text:        buf.String(),
		Annotations: annotations(reader),
	}, nil
}

// ExtractFile reads path and extracts its content.
func ExtractFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Extract(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// annotations collects non-empty annotation Contents across all pages.
func annotations(reader *pdf.Reader) []string {
	var out []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		annots := page.V.Key("Annots")
		if annots.Kind() != pdf.Array {
			continue
		}
		for j := 0; j < annots.Len(); j++ {
			contents := annots.Index(j).Key("Contents")
			if contents.Kind() != pdf.String {
				continue
			}
			if text := strings.TrimSpace(contents.Text()); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}
