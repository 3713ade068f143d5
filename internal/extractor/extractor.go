// Package extractor turns uploaded document bytes into plain text.
package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/JustJay7/case-archive/pkg/logger"
)

// ErrNoDocumentXML is returned for zip archives that are not word documents.
var ErrNoDocumentXML = errors.New("word/document.xml not found")

// TextExtractor is what the import and review workflows depend on.
type TextExtractor interface {
	Extract(data []byte, filename string) string
}

// Extractor selects a parser by file suffix. Parser failures are logged and
// degrade to an empty string.
type Extractor struct {
	logger *logger.Logger
}

func New(log *logger.Logger) *Extractor {
	return &Extractor{logger: log}
}

// Extract returns the text of a .docx/.doc or .pdf file, or "" for anything
// else and for files that fail to parse.
func (e *Extractor) Extract(data []byte, filename string) (text string) {
	ext := strings.ToLower(filepath.Ext(filename))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Text extraction panicked", "file", filename, "panic", fmt.Sprint(r))
			text = ""
		}
	}()

	switch ext {
	case ".docx", ".doc":
		paragraphs, err := DocxParagraphs(data)
		if err != nil {
			e.logger.Warn("Failed to parse word document", "file", filename, "error", err)
			return ""
		}
		return strings.Join(paragraphs, "\n")
	case ".pdf":
		out, err := PDFText(data)
		if err != nil {
			e.logger.Warn("Failed to parse pdf", "file", filename, "error", err)
			return ""
		}
		return out
	default:
		return ""
	}
}

// DocxParagraphs returns the non-empty, trimmed paragraphs of a .docx file
// in document order.
func DocxParagraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, ErrNoDocumentXML
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	return parseParagraphs(rc)
}

func parseParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}

// PDFText concatenates the plain text of every page.
func PDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String()), nil
}
